package handlers

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/callwatch/presenced/app/dto"
	"github.com/callwatch/presenced/app/middleware"
	businessflow "github.com/callwatch/presenced/business_flow"
)

// PresenceHandlerInterface defines the contract for presence handlers
type PresenceHandlerInterface interface {
	ListPresences(c fiber.Ctx) error
	GetPresence(c fiber.Ctx) error
	UpdatePresence(c fiber.Ctx) error
}

// PresenceHandler handles presence-related HTTP requests
type PresenceHandler struct {
	flow      businessflow.PresenceFlow
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(flow businessflow.PresenceFlow, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		flow:      flow,
		validator: validator.New(),
		logger:    logger,
	}
}

// ListPresences serves GET /users/presences. The user_uuid query parameter
// is a comma-separated allow-list; present-but-empty matches nobody.
func (h *PresenceHandler) ListPresences(c fiber.Ctx) error {
	tenantUUID, ok := middleware.TenantUUID(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Missing tenant", ErrorIDUnknownTenant, nil)
	}
	recurse := c.Query("recurse") == "true"

	var userUUIDs *[]uuid.UUID
	if raw, exists := c.Queries()["user_uuid"]; exists {
		parsed := make([]uuid.UUID, 0)
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			userUUID, err := uuid.Parse(part)
			if err != nil {
				return errorResponse(c, fiber.StatusBadRequest, "Invalid user_uuid filter", ErrorIDInvalidData, part)
			}
			parsed = append(parsed, userUUID)
		}
		userUUIDs = &parsed
	}

	result, err := h.flow.ListPresences(c.Context(), tenantUUID, recurse, userUUIDs)
	if err != nil {
		if !businessflow.IsNotInitialized(err) {
			h.logger.Error("failed to list presences", zap.Error(err))
		}
		return mapBusinessError(c, err)
	}
	return c.JSON(result)
}

// GetPresence serves GET /users/:user_uuid/presences
func (h *PresenceHandler) GetPresence(c fiber.Ctx) error {
	tenantUUID, ok := middleware.TenantUUID(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Missing tenant", ErrorIDUnknownTenant, nil)
	}
	userUUID, err := uuid.Parse(c.Params("user_uuid"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid user UUID", ErrorIDInvalidData, nil)
	}
	recurse := c.Query("recurse") == "true"

	presence, err := h.flow.GetPresence(c.Context(), tenantUUID, userUUID, recurse)
	if err != nil {
		if !businessflow.IsNotInitialized(err) && !businessflow.IsUnknownUser(err) {
			h.logger.Error("failed to get presence",
				zap.String("user_uuid", userUUID.String()),
				zap.Error(err))
		}
		return mapBusinessError(c, err)
	}
	return c.JSON(presence)
}

// UpdatePresence serves PUT /users/:user_uuid/presences
func (h *PresenceHandler) UpdatePresence(c fiber.Ctx) error {
	tenantUUID, ok := middleware.TenantUUID(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Missing tenant", ErrorIDUnknownTenant, nil)
	}

	var req dto.PutPresenceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", ErrorIDInvalidData, err.Error())
	}
	req.UUID = c.Params("user_uuid")

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", ErrorIDInvalidData, validationErrors)
	}

	if _, err := h.flow.UpdatePresence(c.Context(), tenantUUID, &req); err != nil {
		if businessflow.IsInvalidPresenceData(err) {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid presence data", ErrorIDInvalidData, nil)
		}
		if !businessflow.IsNotInitialized(err) && !businessflow.IsUnknownUser(err) {
			h.logger.Error("failed to update presence",
				zap.String("user_uuid", req.UUID),
				zap.Error(err))
		}
		return mapBusinessError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
