// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/callwatch/presenced/app/dto"
	businessflow "github.com/callwatch/presenced/business_flow"
)

// API error identifiers
const (
	ErrorIDUnknownUser    = "unknown-user"
	ErrorIDUnknownTenant  = "unknown-tenant"
	ErrorIDInvalidData    = "invalid-data"
	ErrorIDNotInitialized = "not-initialized"
	ErrorIDNotMaster      = "master-tenant-required"
)

func errorResponse(c fiber.Ctx, statusCode int, message, errorID string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			ErrorID: errorID,
			Details: details,
		},
	})
}

// mapBusinessError translates the flow errors every endpoint can raise.
// Handlers deal with their endpoint-specific errors before calling it.
func mapBusinessError(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsNotInitialized(err):
		return errorResponse(c, fiber.StatusServiceUnavailable, "Presence not initialized", ErrorIDNotInitialized, nil)
	case businessflow.IsUnknownUser(err):
		return errorResponse(c, fiber.StatusNotFound, "Unknown user", ErrorIDUnknownUser, nil)
	case businessflow.IsUnknownTenant(err):
		return errorResponse(c, fiber.StatusNotFound, "Unknown tenant", ErrorIDUnknownTenant, nil)
	case businessflow.IsMasterTenantRequired(err):
		return errorResponse(c, fiber.StatusUnauthorized, "Master tenant required", ErrorIDNotMaster, nil)
	default:
		return errorResponse(c, fiber.StatusInternalServerError, "Internal error", "internal-error", nil)
	}
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "uuid":
		return err.Field() + " must be a valid UUID"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
