package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	businessflow "github.com/callwatch/presenced/business_flow"
	"github.com/callwatch/presenced/models"
	"github.com/callwatch/presenced/repository"
	"github.com/callwatch/presenced/utils"
)

// Device names with these prefixes are Asterisk internals, not endpoints.
var ignoredDevicePrefixes = []string{"Custom:", "MWI:", "Queue:"}

// LoopRestarter triggers a new bootstrap sweep. The initiator loop
// implements it.
type LoopRestarter interface {
	Restart()
}

// TeamsBridge reacts to Microsoft account connections. The federation
// package implements it; both methods return immediately.
type TeamsBridge interface {
	UserConnected(userUUID uuid.UUID)
	UserDisconnected(userUUID uuid.UUID)
}

// EventHandler owns the fixed event routing table. Every mutating handler
// runs inside one transaction and broadcasts the owner's presence afterwards.
type EventHandler struct {
	tenantRepo   repository.TenantRepository
	userRepo     repository.UserRepository
	lineRepo     repository.LineRepository
	endpointRepo repository.EndpointRepository
	channelRepo  repository.ChannelRepository
	txManager    repository.TransactionManager
	notifier     businessflow.Notifier
	teams        TeamsBridge
	loop         LoopRestarter
	logger       *zap.Logger
}

// NewEventHandler creates the event handler. teams and loop may be nil.
func NewEventHandler(
	tenantRepo repository.TenantRepository,
	userRepo repository.UserRepository,
	lineRepo repository.LineRepository,
	endpointRepo repository.EndpointRepository,
	channelRepo repository.ChannelRepository,
	txManager repository.TransactionManager,
	notifier businessflow.Notifier,
	teams TeamsBridge,
	loop LoopRestarter,
	logger *zap.Logger,
) *EventHandler {
	return &EventHandler{
		tenantRepo:   tenantRepo,
		userRepo:     userRepo,
		lineRepo:     lineRepo,
		endpointRepo: endpointRepo,
		channelRepo:  channelRepo,
		txManager:    txManager,
		notifier:     notifier,
		teams:        teams,
		loop:         loop,
		logger:       logger,
	}
}

// RegisterAll installs the routing table on the consumer
func (h *EventHandler) RegisterAll(c *Consumer) {
	c.Subscribe(EventTenantCreated, decode(h.onTenantCreated))
	c.Subscribe(EventTenantDeleted, decode(h.onTenantDeleted))
	c.Subscribe(EventUserCreated, decode(h.onUserCreated))
	c.Subscribe(EventUserUpdated, decode(h.onUserUpdated))
	c.Subscribe(EventUserDeleted, decode(h.onUserDeleted))
	c.Subscribe(EventSessionCreated, decode(h.onSessionCreated))
	c.Subscribe(EventSessionDeleted, decode(h.onSessionDeleted))
	c.Subscribe(EventRefreshTokenCreated, decode(h.onRefreshTokenCreated))
	c.Subscribe(EventRefreshTokenDeleted, decode(h.onRefreshTokenDeleted))
	c.Subscribe(EventUserLineAssociated, decode(h.onUserLineAssociated))
	c.Subscribe(EventUserLineDissociated, decode(h.onUserLineDissociated))
	c.Subscribe(EventUserDNDUpdated, decode(h.onDNDUpdated))
	c.Subscribe(EventDeviceStateChanged, decode(h.onDeviceStateChanged))
	c.Subscribe(EventChannelCreated, decode(h.onChannelCreated))
	c.Subscribe(EventChannelStateChange, decode(h.onChannelStateChanged))
	c.Subscribe(EventChannelHold, decode(h.onChannelHold))
	c.Subscribe(EventChannelUnhold, decode(h.onChannelUnhold))
	c.Subscribe(EventChannelHangup, decode(h.onChannelHangup))
	c.Subscribe(EventFullyBooted, h.onFullyBooted)
	c.Subscribe(EventExternalAuthAdded, decode(h.onExternalAuthAdded))
	c.Subscribe(EventExternalAuthDeleted, decode(h.onExternalAuthDeleted))
}

// decode strips the bus envelope and unmarshals its data field into the
// typed payload before handing it to the handler
func decode[T any](handler func(ctx context.Context, event T) error) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var envelope struct {
			Data T `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}
		return handler(ctx, envelope.Data)
	}
}

func (h *EventHandler) onTenantCreated(ctx context.Context, event TenantEvent) error {
	_, err := h.tenantRepo.FindOrCreate(ctx, event.UUID)
	return err
}

func (h *EventHandler) onTenantDeleted(ctx context.Context, event TenantEvent) error {
	return h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return h.tenantRepo.Delete(txCtx, event.UUID)
	})
}

func (h *EventHandler) onUserCreated(ctx context.Context, event UserEvent) error {
	return h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := h.tenantRepo.FindOrCreate(txCtx, event.TenantUUID); err != nil {
			return err
		}
		user := &models.User{
			UUID:         event.UUID,
			TenantUUID:   event.TenantUUID,
			State:        models.UserStateUnavailable,
			DoNotDisturb: utils.ToPtr(false),
		}
		return h.userRepo.Save(txCtx, user)
	})
}

// onUserUpdated reconciles the user's stored lines against the directory's
// current view: removed lines go away, new ones appear with their endpoint.
func (h *EventHandler) onUserUpdated(ctx context.Context, event UserUpdatedEvent) error {
	err := h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		user, err := h.userRepo.ByUUID(txCtx, event.UUID)
		if err != nil {
			return err
		}
		if user == nil {
			return businessflow.ErrUnknownUser
		}

		wanted := make(map[int]LinePayload, len(event.Lines))
		for _, payload := range event.Lines {
			wanted[payload.ID] = payload
		}

		for _, line := range user.Lines {
			if _, keep := wanted[line.ID]; keep {
				delete(wanted, line.ID)
				continue
			}
			if err := h.lineRepo.Delete(txCtx, line.ID); err != nil {
				return err
			}
		}

		for id, payload := range wanted {
			if err := h.lineRepo.Save(txCtx, &models.Line{ID: id, UserUUID: event.UUID}); err != nil {
				return err
			}
			endpointName := EndpointNameFromLinePayload(payload)
			if endpointName == "" {
				continue
			}
			if _, err := h.endpointRepo.FindOrCreate(txCtx, endpointName); err != nil {
				return err
			}
			if err := h.lineRepo.AssociateEndpoint(txCtx, id, endpointName); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return h.notifyUser(ctx, event.UUID)
}

func (h *EventHandler) onUserDeleted(ctx context.Context, event UserEvent) error {
	return h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return h.userRepo.Delete(txCtx, event.UUID)
	})
}

func (h *EventHandler) onSessionCreated(ctx context.Context, event SessionEvent) error {
	err := h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		user, err := h.userRepo.ByUUID(txCtx, event.UserUUID)
		if err != nil {
			return err
		}
		if user == nil {
			return businessflow.ErrUnknownUser
		}
		session := &models.Session{
			UUID:     event.UUID,
			UserUUID: event.UserUUID,
			Mobile:   event.Mobile,
		}
		return h.userRepo.AddSession(txCtx, session)
	})
	if err != nil {
		return err
	}
	return h.notifyUser(ctx, event.UserUUID)
}

func (h *EventHandler) onSessionDeleted(ctx context.Context, event SessionEvent) error {
	err := h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return h.userRepo.RemoveSession(txCtx, event.UserUUID, event.UUID)
	})
	if err != nil {
		return err
	}
	return h.notifyUser(ctx, event.UserUUID)
}

func (h *EventHandler) onRefreshTokenCreated(ctx context.Context, event RefreshTokenEvent) error {
	err := h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		user, err := h.userRepo.ByUUID(txCtx, event.UserUUID)
		if err != nil {
			return err
		}
		if user == nil {
			return businessflow.ErrUnknownUser
		}
		token := &models.RefreshToken{
			ClientID: event.ClientID,
			UserUUID: event.UserUUID,
			Mobile:   event.Mobile,
		}
		return h.userRepo.AddRefreshToken(txCtx, token)
	})
	if err != nil {
		return err
	}
	return h.notifyUser(ctx, event.UserUUID)
}

func (h *EventHandler) onRefreshTokenDeleted(ctx context.Context, event RefreshTokenEvent) error {
	err := h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return h.userRepo.RemoveRefreshToken(txCtx, event.UserUUID, event.ClientID)
	})
	if err != nil {
		return err
	}
	return h.notifyUser(ctx, event.UserUUID)
}

func (h *EventHandler) onUserLineAssociated(ctx context.Context, event UserLineEvent) error {
	err := h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		user, err := h.userRepo.ByUUID(txCtx, event.User.UUID)
		if err != nil {
			return err
		}
		if user == nil {
			return businessflow.ErrUnknownUser
		}

		// A line already attached elsewhere moves to the new owner.
		existing, err := h.lineRepo.ByID(txCtx, event.Line.ID)
		if err != nil {
			return err
		}
		if existing != nil && existing.UserUUID != event.User.UUID {
			h.logger.Warn("line reassigned to another user",
				zap.Int("line_id", event.Line.ID),
				zap.String("previous_user", existing.UserUUID.String()),
				zap.String("new_user", event.User.UUID.String()))
			if err := h.lineRepo.Delete(txCtx, event.Line.ID); err != nil {
				return err
			}
			existing = nil
		}

		if existing == nil {
			line := &models.Line{ID: event.Line.ID, UserUUID: event.User.UUID}
			if err := h.lineRepo.Save(txCtx, line); err != nil {
				return err
			}
		}

		endpointName := EndpointNameFromLinePayload(event.Line)
		if endpointName == "" {
			return nil
		}
		if _, err := h.endpointRepo.FindOrCreate(txCtx, endpointName); err != nil {
			return err
		}
		return h.lineRepo.AssociateEndpoint(txCtx, event.Line.ID, endpointName)
	})
	if err != nil {
		return err
	}
	return h.notifyUser(ctx, event.User.UUID)
}

func (h *EventHandler) onUserLineDissociated(ctx context.Context, event UserLineEvent) error {
	err := h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return h.lineRepo.Delete(txCtx, event.Line.ID)
	})
	if err != nil {
		return err
	}
	return h.notifyUser(ctx, event.User.UUID)
}

func (h *EventHandler) onDNDUpdated(ctx context.Context, event DNDEvent) error {
	err := h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return h.userRepo.SetDoNotDisturb(txCtx, event.UserUUID, event.Enabled)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return businessflow.ErrUnknownUser
		}
		return err
	}
	return h.notifyUser(ctx, event.UserUUID)
}

func (h *EventHandler) onDeviceStateChanged(ctx context.Context, event DeviceStateEvent) error {
	if ShouldIgnoreDevice(event.Device) {
		return nil
	}

	var ownerUUID *uuid.UUID
	err := h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		state := DeviceStateToEndpointState(event.State)
		changed, err := h.endpointRepo.UpdateState(txCtx, event.Device, state)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		line, err := h.lineRepo.ByEndpointName(txCtx, event.Device)
		if err != nil {
			return err
		}
		if line != nil {
			ownerUUID = &line.UserUUID
		}
		return nil
	})
	if err != nil {
		return err
	}
	if ownerUUID == nil {
		return nil
	}
	return h.notifyUser(ctx, *ownerUUID)
}

func (h *EventHandler) onChannelCreated(ctx context.Context, event ChannelEvent) error {
	return h.handleChannelUpdate(ctx, event.Channel, ChannelStateFromDesc(event.ChannelStateDesc), true)
}

func (h *EventHandler) onChannelStateChanged(ctx context.Context, event ChannelEvent) error {
	return h.handleChannelUpdate(ctx, event.Channel, ChannelStateFromDesc(event.ChannelStateDesc), false)
}

func (h *EventHandler) onChannelHold(ctx context.Context, event ChannelEvent) error {
	return h.handleChannelUpdate(ctx, event.Channel, models.ChannelStateHolding, false)
}

func (h *EventHandler) onChannelUnhold(ctx context.Context, event ChannelEvent) error {
	return h.handleChannelUpdate(ctx, event.Channel, ChannelStateFromDesc(event.ChannelStateDesc), false)
}

func (h *EventHandler) handleChannelUpdate(ctx context.Context, channelName, state string, create bool) error {
	endpointName := EndpointNameFromChannel(channelName)
	if endpointName == "" {
		return businessflow.ErrUnknownChannel
	}

	var ownerUUID uuid.UUID
	err := h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		line, err := h.lineRepo.ByEndpointName(txCtx, endpointName)
		if err != nil {
			return err
		}
		if line == nil {
			return businessflow.ErrUnknownLine
		}
		ownerUUID = line.UserUUID

		if create {
			channel := &models.Channel{Name: channelName, State: state, LineID: line.ID}
			return h.channelRepo.Save(txCtx, channel)
		}
		if err := h.channelRepo.UpdateState(txCtx, channelName, state); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return businessflow.ErrUnknownChannel
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return h.notifyUser(ctx, ownerUUID)
}

func (h *EventHandler) onChannelHangup(ctx context.Context, event ChannelEvent) error {
	endpointName := EndpointNameFromChannel(event.Channel)
	if endpointName == "" {
		return businessflow.ErrUnknownChannel
	}

	var ownerUUID uuid.UUID
	err := h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		line, err := h.lineRepo.ByEndpointName(txCtx, endpointName)
		if err != nil {
			return err
		}
		if line == nil {
			return businessflow.ErrUnknownLine
		}
		ownerUUID = line.UserUUID
		return h.channelRepo.Delete(txCtx, event.Channel)
	})
	if err != nil {
		return err
	}
	return h.notifyUser(ctx, ownerUUID)
}

// onFullyBooted re-runs the bootstrap sweep: an Asterisk restart invalidates
// every device and channel state we hold.
func (h *EventHandler) onFullyBooted(ctx context.Context, body []byte) error {
	if h.loop != nil {
		h.loop.Restart()
	}
	return nil
}

func (h *EventHandler) onExternalAuthAdded(ctx context.Context, event ExternalAuthEvent) error {
	if event.ExternalAuthName != "microsoft" || h.teams == nil {
		return nil
	}
	h.teams.UserConnected(event.UserUUID)
	return nil
}

func (h *EventHandler) onExternalAuthDeleted(ctx context.Context, event ExternalAuthEvent) error {
	if event.ExternalAuthName != "microsoft" || h.teams == nil {
		return nil
	}
	h.teams.UserDisconnected(event.UserUUID)
	return nil
}

// notifyUser broadcasts the user's current presence document
func (h *EventHandler) notifyUser(ctx context.Context, userUUID uuid.UUID) error {
	user, err := h.userRepo.ByUUID(ctx, userUUID)
	if err != nil {
		return err
	}
	if user == nil {
		return businessflow.ErrUnknownUser
	}
	return h.notifier.PresenceUpdated(ctx, *user)
}

// ShouldIgnoreDevice reports whether the device name is an Asterisk internal
func ShouldIgnoreDevice(device string) bool {
	for _, prefix := range ignoredDevicePrefixes {
		if strings.HasPrefix(device, prefix) {
			return true
		}
	}
	return false
}

// DeviceStateToEndpointState maps an Asterisk device state onto the two
// endpoint states we track.
func DeviceStateToEndpointState(state string) string {
	switch state {
	case "INUSE", "NOT_INUSE", "RINGING", "ONHOLD", "RINGINUSE":
		return models.EndpointStateAvailable
	default:
		// UNAVAILABLE, UNKNOWN, BUSY, INVALID
		return models.EndpointStateUnavailable
	}
}

// ChannelStateFromDesc maps an Asterisk channel state description onto a
// call state.
func ChannelStateFromDesc(desc string) string {
	switch desc {
	case "Ring":
		return models.ChannelStateProgressing
	case "Ringing":
		return models.ChannelStateRinging
	case "Up", "Busy":
		return models.ChannelStateTalking
	default:
		return models.ChannelStateUndefined
	}
}

// EndpointNameFromChannel derives the endpoint name by dropping the channel's
// unique suffix: PJSIP/abc-00000001 belongs to endpoint PJSIP/abc. A name
// without a suffix yields "" and the event is dropped.
func EndpointNameFromChannel(channel string) string {
	idx := strings.LastIndex(channel, "-")
	if idx <= 0 {
		return ""
	}
	return channel[:idx]
}

// EndpointNameFromLinePayload derives the endpoint name from a line's
// technology. Lines without an endpoint yield "".
func EndpointNameFromLinePayload(line LinePayload) string {
	switch {
	case line.EndpointSIP != nil:
		return "PJSIP/" + line.Name
	case line.EndpointSCCP != nil:
		return "SCCP/" + line.Name
	case line.EndpointCustom != nil:
		return line.Name
	default:
		return ""
	}
}
