// Package federation mirrors Microsoft Teams presence into the local
// presence store, one Graph subscription per connected user.
package federation

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/callwatch/presenced/app/dto"
	"github.com/callwatch/presenced/app/services"
	businessflow "github.com/callwatch/presenced/business_flow"
	"github.com/callwatch/presenced/config"
	"github.com/callwatch/presenced/models"
	"github.com/callwatch/presenced/repository"
	"github.com/callwatch/presenced/utils"
)

// Federation tracks one subscription renewer per user with a connected
// Microsoft account.
type Federation struct {
	config    *config.TeamsConfig
	auth      services.AuthClient
	confd     services.ConfdClient
	graph     services.GraphClient
	userRepo  repository.UserRepository
	txManager repository.TransactionManager
	notifier  businessflow.Notifier
	logger    *zap.Logger

	// mu guards renewers and runCtx; AddUser can race Start when an
	// external auth event arrives while the service is still wiring up.
	mu       sync.Mutex
	renewers map[uuid.UUID]*SubscriptionRenewer
	runCtx   context.Context
	wg       sync.WaitGroup
}

// NewFederation creates the Teams presence federation
func NewFederation(
	cfg *config.TeamsConfig,
	auth services.AuthClient,
	confd services.ConfdClient,
	graph services.GraphClient,
	userRepo repository.UserRepository,
	txManager repository.TransactionManager,
	notifier businessflow.Notifier,
	logger *zap.Logger,
) *Federation {
	return &Federation{
		config:    cfg,
		auth:      auth,
		confd:     confd,
		graph:     graph,
		userRepo:  userRepo,
		txManager: txManager,
		notifier:  notifier,
		logger:    logger,
		renewers:  make(map[uuid.UUID]*SubscriptionRenewer),
	}
}

// Start begins federation for every user already connected to Microsoft and
// returns a stop function that tears every synchronization down.
func (f *Federation) Start(ctx context.Context) func() {
	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.runCtx = runCtx
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.bootstrap(runCtx)
	}()

	return func() {
		cancel()
		f.wg.Wait()
	}
}

func (f *Federation) bootstrap(ctx context.Context) {
	token, err := f.auth.NewToken(ctx)
	if err != nil {
		f.logger.Warn("teams federation bootstrap skipped, no service token", zap.Error(err))
		return
	}
	userUUIDs, err := f.auth.ListExternalConnectedUsers(ctx, token.Token)
	if err != nil {
		f.logger.Warn("teams federation bootstrap skipped, cannot list connected users", zap.Error(err))
		return
	}
	for _, userUUID := range userUUIDs {
		if err := f.AddUser(userUUID); err != nil && !businessflow.IsSynchronizerExists(err) {
			f.logger.Warn("failed to start teams federation for user",
				zap.String("user_uuid", userUUID.String()),
				zap.Error(err))
		}
	}
}

// UserConnected implements bus.TeamsBridge; it returns immediately
func (f *Federation) UserConnected(userUUID uuid.UUID) {
	go func() {
		if err := f.AddUser(userUUID); err != nil && !businessflow.IsSynchronizerExists(err) {
			f.logger.Warn("failed to start teams federation for user",
				zap.String("user_uuid", userUUID.String()),
				zap.Error(err))
		}
	}()
}

// UserDisconnected implements bus.TeamsBridge; it returns immediately
func (f *Federation) UserDisconnected(userUUID uuid.UUID) {
	go func() {
		if err := f.RemoveUser(userUUID); err != nil && !businessflow.IsNoSynchronizer(err) {
			f.logger.Warn("failed to stop teams federation for user",
				zap.String("user_uuid", userUUID.String()),
				zap.Error(err))
		}
	}()
}

// AddUser starts a subscription renewer for the user
func (f *Federation) AddUser(userUUID uuid.UUID) error {
	f.mu.Lock()
	ctx := f.runCtx
	f.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	user, err := f.userRepo.ByUUID(ctx, userUUID)
	if err != nil {
		return err
	}
	if user == nil {
		return businessflow.ErrUnknownUser
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.renewers[userUUID]; exists {
		return businessflow.ErrSynchronizerExists
	}

	renewer := newSubscriptionRenewer(f, userUUID, user.TenantUUID)
	f.renewers[userUUID] = renewer

	renewerCtx, cancel := context.WithCancel(ctx)
	renewer.cancel = cancel
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.forget(userUUID)
		renewer.run(renewerCtx)
	}()
	return nil
}

// RemoveUser cancels the user's subscription renewer
func (f *Federation) RemoveUser(userUUID uuid.UUID) error {
	f.mu.Lock()
	renewer, exists := f.renewers[userUUID]
	f.mu.Unlock()
	if !exists {
		return businessflow.ErrNoSynchronizer
	}
	renewer.cancel()
	return nil
}

// HasActiveSynchronization reports whether the user's federation is live
func (f *Federation) HasActiveSynchronization(userUUID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.renewers[userUUID]
	return exists
}

func (f *Federation) renewer(userUUID uuid.UUID) *SubscriptionRenewer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renewers[userUUID]
}

func (f *Federation) forget(userUUID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.renewers, userUUID)
}

// HandleNotification processes a Graph change-notification delivery for one
// user. The presence is always re-read from Graph rather than trusted from
// the delivery body.
func (f *Federation) HandleNotification(ctx context.Context, userUUID uuid.UUID, payload *dto.GraphNotificationPayload) error {
	renewer := f.renewer(userUUID)
	if renewer == nil {
		return businessflow.ErrNoSynchronizer
	}

	for _, notification := range payload.Value {
		if state := renewer.clientState(); state != "" && notification.ClientState != state {
			f.logger.Warn("teams notification with wrong client state dropped",
				zap.String("user_uuid", userUUID.String()))
			continue
		}
	}

	presence, err := renewer.fetchPresence(ctx)
	if err != nil {
		return err
	}

	state, dnd, ok := TranslateTeamsAvailability(presence.Availability)
	if !ok {
		return nil
	}
	return f.applyPresence(ctx, userUUID, state, dnd)
}

// applyPresence writes the translated presence and mirrors DND to confd when
// it changed.
func (f *Federation) applyPresence(ctx context.Context, userUUID uuid.UUID, state string, dnd bool) error {
	var updated *models.User
	var dndChanged bool

	err := f.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		user, err := f.userRepo.ByUUID(txCtx, userUUID)
		if err != nil {
			return err
		}
		if user == nil {
			return businessflow.ErrUnknownUser
		}

		now := utils.UTCNow()
		if err := f.userRepo.UpdatePresence(txCtx, userUUID, state, user.Status, &now); err != nil {
			return err
		}
		if utils.IsTrue(user.DoNotDisturb) != dnd {
			dndChanged = true
			if err := f.userRepo.SetDoNotDisturb(txCtx, userUUID, dnd); err != nil {
				return err
			}
		}

		updated, err = f.userRepo.ByUUID(txCtx, userUUID)
		return err
	})
	if err != nil {
		return err
	}

	if dndChanged {
		if token, err := f.auth.NewToken(ctx); err == nil {
			if err := f.confd.UpdateUserDND(ctx, token.Token, userUUID, dnd); err != nil {
				f.logger.Warn("failed to mirror DND to confd",
					zap.String("user_uuid", userUUID.String()),
					zap.Error(err))
			}
		}
	}

	if updated != nil {
		if err := f.notifier.PresenceUpdated(ctx, *updated); err != nil {
			f.logger.Warn("failed to publish teams presence update",
				zap.String("user_uuid", userUUID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// TranslateTeamsAvailability maps a Teams availability onto a local presence
// state and DND flag. ok is false for availabilities that must not overwrite
// the local state.
func TranslateTeamsAvailability(availability string) (state string, dnd bool, ok bool) {
	switch availability {
	case "Available", "AvailableIdle":
		return models.UserStateAvailable, false, true
	case "Away", "BeRightBack":
		return models.UserStateAway, false, true
	case "Busy", "BusyIdle", "DoNotDisturb":
		return models.UserStateUnavailable, true, true
	default:
		// Offline, PresenceUnknown
		return "", false, false
	}
}
