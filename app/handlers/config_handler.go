package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap/zapcore"

	"github.com/callwatch/presenced/app/dto"
	"github.com/callwatch/presenced/app/middleware"
	businessflow "github.com/callwatch/presenced/business_flow"
	"github.com/callwatch/presenced/config"

	"go.uber.org/zap"
)

// ConfigHandler exposes the running configuration to the master tenant and
// lets it toggle debug logging at runtime.
type ConfigHandler struct {
	config    *config.ProductionConfig
	status    *businessflow.StatusAggregator
	logLevel  zap.AtomicLevel
	baseLevel zapcore.Level
	validator *validator.Validate
}

// NewConfigHandler creates a new config handler. baseLevel is the configured
// level debug mode falls back to when switched off.
func NewConfigHandler(cfg *config.ProductionConfig, status *businessflow.StatusAggregator, logLevel zap.AtomicLevel, baseLevel zapcore.Level) *ConfigHandler {
	return &ConfigHandler{
		config:    cfg,
		status:    status,
		logLevel:  logLevel,
		baseLevel: baseLevel,
		validator: validator.New(),
	}
}

// GetConfig serves GET /config
func (h *ConfigHandler) GetConfig(c fiber.Ctx) error {
	if err := h.requireMasterTenant(c); err != nil {
		return err
	}
	return c.JSON(h.view())
}

// PatchConfig serves PATCH /config. The only supported operation is
// {op: replace, path: /debug, value: bool}.
func (h *ConfigHandler) PatchConfig(c fiber.Ctx) error {
	if err := h.requireMasterTenant(c); err != nil {
		return err
	}

	var ops []dto.ConfigPatchRequest
	if err := c.Bind().JSON(&ops); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", ErrorIDInvalidData, err.Error())
	}

	for _, op := range ops {
		if err := h.validator.Struct(&op); err != nil {
			var validationErrors []string
			for _, err := range err.(validator.ValidationErrors) {
				validationErrors = append(validationErrors, getValidationErrorMessage(err))
			}
			return errorResponse(c, fiber.StatusBadRequest, "Validation failed", ErrorIDInvalidData, validationErrors)
		}

		if op.Value {
			h.logLevel.SetLevel(zapcore.DebugLevel)
		} else {
			h.logLevel.SetLevel(h.baseLevel)
		}
	}
	return c.JSON(h.view())
}

func (h *ConfigHandler) requireMasterTenant(c fiber.Ctx) error {
	tenantUUID, ok := middleware.TenantUUID(c)
	if !ok || !h.status.IsMasterTenant(tenantUUID) {
		return mapBusinessError(c, businessflow.ErrMasterTenantRequired)
	}
	return nil
}

// view returns the configuration with credentials blanked
func (h *ConfigHandler) view() fiber.Map {
	redacted := *h.config
	redacted.Database.Password = ""
	redacted.Auth.ServiceKey = ""

	return fiber.Map{
		"config": redacted,
		"debug":  h.logLevel.Level() == zapcore.DebugLevel,
	}
}
