package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/callwatch/presenced/app/dto"
	"github.com/callwatch/presenced/app/federation"
	businessflow "github.com/callwatch/presenced/business_flow"
)

// TeamsHandler receives Microsoft Graph change notifications
type TeamsHandler struct {
	federation *federation.Federation
	logger     *zap.Logger
}

// NewTeamsHandler creates a new teams webhook handler
func NewTeamsHandler(fed *federation.Federation, logger *zap.Logger) *TeamsHandler {
	return &TeamsHandler{federation: fed, logger: logger}
}

// Notify serves POST /users/:user_uuid/teams/presence. Graph validates the
// endpoint with a validationToken handshake before delivering notifications;
// the token must be echoed back as plain text.
func (h *TeamsHandler) Notify(c fiber.Ctx) error {
	userUUID, err := uuid.Parse(c.Params("user_uuid"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid user UUID", ErrorIDInvalidData, nil)
	}

	if token := c.Query("validationToken"); token != "" {
		if !h.federation.HasActiveSynchronization(userUUID) {
			return errorResponse(c, fiber.StatusNotFound, "No presence synchronization for user", ErrorIDUnknownUser, nil)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(token)
	}

	var payload dto.GraphNotificationPayload
	if err := c.Bind().JSON(&payload); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid notification body", ErrorIDInvalidData, err.Error())
	}

	if err := h.federation.HandleNotification(c.Context(), userUUID, &payload); err != nil {
		if businessflow.IsNoSynchronizer(err) || businessflow.IsUnknownUser(err) {
			return errorResponse(c, fiber.StatusNotFound, "No presence synchronization for user", ErrorIDUnknownUser, nil)
		}
		h.logger.Error("failed to process teams notification",
			zap.String("user_uuid", userUUID.String()),
			zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to process notification", "internal-error", nil)
	}
	return c.SendStatus(fiber.StatusOK)
}
