// Package initiator rebuilds the presence store from the collaborating
// services, then keeps retrying until one full sweep succeeds.
package initiator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/callwatch/presenced/app/bus"
	"github.com/callwatch/presenced/app/services"
	businessflow "github.com/callwatch/presenced/business_flow"
	"github.com/callwatch/presenced/models"
	"github.com/callwatch/presenced/repository"
	"github.com/callwatch/presenced/utils"
)

// Initiator performs one bootstrap sweep: collect the source of truth from
// auth, confd and amid, then reconcile the store against it in a single
// transaction.
type Initiator struct {
	auth   services.AuthClient
	confd  services.ConfdClient
	amid   services.AmidClient
	status *businessflow.StatusAggregator
	logger *zap.Logger

	tenantRepo       repository.TenantRepository
	userRepo         repository.UserRepository
	sessionRepo      repository.SessionRepository
	refreshTokenRepo repository.RefreshTokenRepository
	lineRepo         repository.LineRepository
	endpointRepo     repository.EndpointRepository
	channelRepo      repository.ChannelRepository
	txManager        repository.TransactionManager

	postHooks []func(context.Context) error
}

// NewInitiator creates a bootstrap sweep runner
func NewInitiator(
	auth services.AuthClient,
	confd services.ConfdClient,
	amid services.AmidClient,
	status *businessflow.StatusAggregator,
	tenantRepo repository.TenantRepository,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	refreshTokenRepo repository.RefreshTokenRepository,
	lineRepo repository.LineRepository,
	endpointRepo repository.EndpointRepository,
	channelRepo repository.ChannelRepository,
	txManager repository.TransactionManager,
	logger *zap.Logger,
) *Initiator {
	return &Initiator{
		auth:             auth,
		confd:            confd,
		amid:             amid,
		status:           status,
		tenantRepo:       tenantRepo,
		userRepo:         userRepo,
		sessionRepo:      sessionRepo,
		refreshTokenRepo: refreshTokenRepo,
		lineRepo:         lineRepo,
		endpointRepo:     endpointRepo,
		channelRepo:      channelRepo,
		txManager:        txManager,
		logger:           logger,
	}
}

// OnComplete registers a hook that runs after every successful sweep, outside
// the reconciliation transaction. A failing hook fails the sweep.
func (i *Initiator) OnComplete(hook func(context.Context) error) {
	i.postHooks = append(i.postHooks, hook)
}

// collected is everything one sweep gathered before touching the store
type collected struct {
	tenants       []uuid.UUID
	users         []services.ConfdUser
	sessions      []services.SessionItem
	refreshTokens []services.RefreshTokenItem
	deviceStates  []services.AMIDEvent
	channels      []services.AMIDEvent
}

// Run performs one sweep. amidTimeout bounds each AMI action read; the loop
// escalates it between attempts.
func (i *Initiator) Run(ctx context.Context, amidTimeout time.Duration) error {
	token, err := i.auth.NewToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire service token: %w", err)
	}
	i.status.SetMasterTenant(token.TenantUUID)

	data, err := i.collect(ctx, token.Token, amidTimeout)
	if err != nil {
		return err
	}

	err = i.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := i.reconcileTenants(txCtx, data.tenants); err != nil {
			return err
		}
		if err := i.reconcileUsers(txCtx, data.users); err != nil {
			return err
		}
		if err := i.reconcileLines(txCtx, data.users); err != nil {
			return err
		}
		if err := i.reconcileSessions(txCtx, data.sessions); err != nil {
			return err
		}
		if err := i.reconcileRefreshTokens(txCtx, data.refreshTokens); err != nil {
			return err
		}
		if err := i.rebuildEndpoints(txCtx, data.deviceStates); err != nil {
			return err
		}
		return i.rebuildChannels(txCtx, data.channels)
	})
	if err != nil {
		return fmt.Errorf("bootstrap reconciliation failed: %w", err)
	}

	for _, hook := range i.postHooks {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("bootstrap post-hook failed: %w", err)
		}
	}

	i.logger.Info("bootstrap sweep completed",
		zap.Int("tenants", len(data.tenants)),
		zap.Int("users", len(data.users)),
		zap.Int("sessions", len(data.sessions)))
	return nil
}

func (i *Initiator) collect(ctx context.Context, token string, amidTimeout time.Duration) (*collected, error) {
	var data collected
	var err error

	if data.tenants, err = i.auth.ListTenants(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	if data.users, err = i.confd.ListUsers(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if data.sessions, err = i.auth.ListSessions(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if data.refreshTokens, err = i.auth.ListRefreshTokens(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}

	amidCtx, cancel := context.WithTimeout(ctx, amidTimeout)
	defer cancel()
	if data.deviceStates, err = i.amid.Action(amidCtx, token, services.ActionDeviceStateList); err != nil {
		return nil, fmt.Errorf("failed to list device states: %w", err)
	}
	if data.channels, err = i.amid.Action(amidCtx, token, services.ActionCoreShowChannels); err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return &data, nil
}

func (i *Initiator) reconcileTenants(ctx context.Context, remote []uuid.UUID) error {
	existing, err := i.tenantRepo.List(ctx)
	if err != nil {
		return err
	}

	remoteSet := make(map[uuid.UUID]bool, len(remote))
	for _, t := range remote {
		remoteSet[t] = true
		if _, err := i.tenantRepo.FindOrCreate(ctx, t); err != nil {
			return err
		}
	}
	for _, t := range existing {
		if !remoteSet[t.UUID] {
			if err := i.tenantRepo.Delete(ctx, t.UUID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (i *Initiator) reconcileUsers(ctx context.Context, remote []services.ConfdUser) error {
	existing, err := i.userRepo.List(ctx, models.UserFilter{})
	if err != nil {
		return err
	}
	existingByUUID := make(map[uuid.UUID]*models.User, len(existing))
	for _, u := range existing {
		existingByUUID[u.UUID] = u
	}

	remoteSet := make(map[uuid.UUID]bool, len(remote))
	for _, ru := range remote {
		remoteSet[ru.UUID] = true
		current, known := existingByUUID[ru.UUID]
		if !known {
			user := &models.User{
				UUID:         ru.UUID,
				TenantUUID:   ru.TenantUUID,
				State:        models.UserStateUnavailable,
				DoNotDisturb: utils.ToPtr(ru.Services.DND.Enabled),
			}
			if err := i.userRepo.Save(ctx, user); err != nil {
				return err
			}
			continue
		}
		// Restarts may have missed DND changes; the source of truth wins.
		if utils.IsTrue(current.DoNotDisturb) != ru.Services.DND.Enabled {
			if err := i.userRepo.SetDoNotDisturb(ctx, ru.UUID, ru.Services.DND.Enabled); err != nil {
				return err
			}
		}
	}

	for _, u := range existing {
		if !remoteSet[u.UUID] {
			if err := i.userRepo.Delete(ctx, u.UUID); err != nil {
				return err
			}
		}
	}
	return nil
}

// desiredLine is one line attachment as confd describes it
type desiredLine struct {
	userUUID     uuid.UUID
	endpointName string
}

func (i *Initiator) reconcileLines(ctx context.Context, remote []services.ConfdUser) error {
	desired := make(map[int]desiredLine)
	for _, ru := range remote {
		for _, rl := range ru.Lines {
			if owner, taken := desired[rl.ID]; taken {
				// Multi-user lines are not supported; the first owner wins.
				i.logger.Warn("line attached to several users",
					zap.Int("line_id", rl.ID),
					zap.String("kept_user", owner.userUUID.String()),
					zap.String("ignored_user", ru.UUID.String()))
				continue
			}
			desired[rl.ID] = desiredLine{
				userUUID: ru.UUID,
				endpointName: bus.EndpointNameFromLinePayload(bus.LinePayload{
					Name:           rl.Name,
					EndpointSIP:    rl.EndpointSIP,
					EndpointSCCP:   rl.EndpointSCCP,
					EndpointCustom: rl.EndpointCustom,
				}),
			}
		}
	}

	existing, err := i.lineRepo.List(ctx)
	if err != nil {
		return err
	}
	existingByID := make(map[int]*models.Line, len(existing))
	for _, l := range existing {
		existingByID[l.ID] = l
	}

	for _, l := range existing {
		want, keep := desired[l.ID]
		if keep && want.userUUID == l.UserUUID {
			continue
		}
		if err := i.lineRepo.Delete(ctx, l.ID); err != nil {
			return err
		}
		delete(existingByID, l.ID)
	}

	for id, want := range desired {
		if _, ok := existingByID[id]; !ok {
			line := &models.Line{ID: id, UserUUID: want.userUUID}
			if err := i.lineRepo.Save(ctx, line); err != nil {
				return err
			}
		}
		if want.endpointName == "" {
			continue
		}
		if _, err := i.endpointRepo.FindOrCreate(ctx, want.endpointName); err != nil {
			return err
		}
		if err := i.lineRepo.AssociateEndpoint(ctx, id, want.endpointName); err != nil {
			return err
		}
	}
	return nil
}

func (i *Initiator) reconcileSessions(ctx context.Context, remote []services.SessionItem) error {
	existing, err := i.sessionRepo.List(ctx)
	if err != nil {
		return err
	}

	remoteSet := make(map[uuid.UUID]bool, len(remote))
	for _, rs := range remote {
		remoteSet[rs.UUID] = true
	}
	for _, s := range existing {
		if !remoteSet[s.UUID] {
			if err := i.userRepo.RemoveSession(ctx, s.UserUUID, s.UUID); err != nil {
				return err
			}
		}
	}

	existingSet := make(map[uuid.UUID]bool, len(existing))
	for _, s := range existing {
		existingSet[s.UUID] = true
	}
	for _, rs := range remote {
		if existingSet[rs.UUID] {
			continue
		}
		user, err := i.userRepo.ByUUID(ctx, rs.UserUUID)
		if err != nil {
			return err
		}
		if user == nil {
			continue
		}
		session := &models.Session{UUID: rs.UUID, UserUUID: rs.UserUUID, Mobile: rs.Mobile}
		if err := i.userRepo.AddSession(ctx, session); err != nil {
			return err
		}
	}
	return nil
}

func (i *Initiator) reconcileRefreshTokens(ctx context.Context, remote []services.RefreshTokenItem) error {
	existing, err := i.refreshTokenRepo.List(ctx)
	if err != nil {
		return err
	}

	type key struct {
		clientID string
		userUUID uuid.UUID
	}
	remoteSet := make(map[key]bool, len(remote))
	for _, rt := range remote {
		remoteSet[key{rt.ClientID, rt.UserUUID}] = true
	}
	for _, t := range existing {
		if !remoteSet[key{t.ClientID, t.UserUUID}] {
			if err := i.userRepo.RemoveRefreshToken(ctx, t.UserUUID, t.ClientID); err != nil {
				return err
			}
		}
	}

	existingSet := make(map[key]bool, len(existing))
	for _, t := range existing {
		existingSet[key{t.ClientID, t.UserUUID}] = true
	}
	for _, rt := range remote {
		if existingSet[key{rt.ClientID, rt.UserUUID}] {
			continue
		}
		user, err := i.userRepo.ByUUID(ctx, rt.UserUUID)
		if err != nil {
			return err
		}
		if user == nil {
			continue
		}
		token := &models.RefreshToken{ClientID: rt.ClientID, UserUUID: rt.UserUUID, Mobile: rt.Mobile}
		if err := i.userRepo.AddRefreshToken(ctx, token); err != nil {
			return err
		}
	}
	return nil
}

// rebuildEndpoints wipes and rebuilds the endpoint table from the device
// state list, then fills in line-referenced endpoints Asterisk did not
// report, which stay unavailable.
func (i *Initiator) rebuildEndpoints(ctx context.Context, deviceStates []services.AMIDEvent) error {
	// Wiping the endpoint table nulls the line associations, so capture them
	// first and restore them afterwards.
	lines, err := i.lineRepo.List(ctx)
	if err != nil {
		return err
	}
	associations := make(map[int]string, len(lines))
	for _, line := range lines {
		if line.EndpointName != nil {
			associations[line.ID] = *line.EndpointName
		}
	}

	if err := i.endpointRepo.DeleteAll(ctx); err != nil {
		return err
	}

	for _, event := range deviceStates {
		if event.Device == "" || bus.ShouldIgnoreDevice(event.Device) {
			continue
		}
		state := bus.DeviceStateToEndpointState(event.State)
		if _, err := i.endpointRepo.UpdateState(ctx, event.Device, state); err != nil {
			return err
		}
	}

	for lineID, endpointName := range associations {
		if _, err := i.endpointRepo.FindOrCreate(ctx, endpointName); err != nil {
			return err
		}
		if err := i.lineRepo.AssociateEndpoint(ctx, lineID, endpointName); err != nil {
			return err
		}
	}
	return nil
}

// rebuildChannels wipes and rebuilds the channel table from the live channel
// list. Channels whose endpoint has no line are ignored.
func (i *Initiator) rebuildChannels(ctx context.Context, channels []services.AMIDEvent) error {
	if err := i.channelRepo.DeleteAll(ctx); err != nil {
		return err
	}

	for _, event := range channels {
		endpointName := bus.EndpointNameFromChannel(event.Channel)
		if endpointName == "" {
			continue
		}
		line, err := i.lineRepo.ByEndpointName(ctx, endpointName)
		if err != nil {
			return err
		}
		if line == nil {
			continue
		}
		channel := &models.Channel{
			Name:   event.Channel,
			LineID: line.ID,
			State:  channelStateFromSweep(event),
		}
		if err := i.channelRepo.Save(ctx, channel); err != nil {
			return err
		}
	}
	return nil
}

// channelStateFromSweep derives a call state from a CoreShowChannels event.
// The on-hold channel variable takes precedence over the state description.
func channelStateFromSweep(event services.AMIDEvent) string {
	if event.ChanVariable["XIVO_ON_HOLD"] == "1" {
		return models.ChannelStateHolding
	}
	return bus.ChannelStateFromDesc(event.ChannelStateDesc)
}
