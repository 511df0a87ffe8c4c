package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/callwatch/presenced/app/dto"
	"github.com/callwatch/presenced/models"
	"github.com/callwatch/presenced/repository"
	"github.com/callwatch/presenced/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PresenceFlow serves the read and write operations of the presence API.
// Every operation refuses to answer before the first bootstrap completed.
type PresenceFlow interface {
	ListPresences(ctx context.Context, tenantUUID uuid.UUID, recurse bool, userUUIDs *[]uuid.UUID) (*dto.PresenceListResponse, error)
	GetPresence(ctx context.Context, tenantUUID, userUUID uuid.UUID, recurse bool) (*dto.UserPresenceDTO, error)
	UpdatePresence(ctx context.Context, tenantUUID uuid.UUID, req *dto.PutPresenceRequest) (*dto.UserPresenceDTO, error)
}

type presenceFlow struct {
	userRepo    repository.UserRepository
	txManager   repository.TransactionManager
	notifier    Notifier
	status      *StatusAggregator
	cache       *redis.Client
	cachePrefix string
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewPresenceFlow creates the presence flow. cache may be nil, in which case
// every read goes to the database.
func NewPresenceFlow(
	userRepo repository.UserRepository,
	txManager repository.TransactionManager,
	notifier Notifier,
	status *StatusAggregator,
	cache *redis.Client,
	cachePrefix string,
	cacheTTL time.Duration,
	logger *zap.Logger,
) PresenceFlow {
	return &presenceFlow{
		userRepo:    userRepo,
		txManager:   txManager,
		notifier:    notifier,
		status:      status,
		cache:       cache,
		cachePrefix: cachePrefix,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

func (f *presenceFlow) ListPresences(ctx context.Context, tenantUUID uuid.UUID, recurse bool, userUUIDs *[]uuid.UUID) (*dto.PresenceListResponse, error) {
	if !f.status.Initialized() {
		return nil, ErrNotInitialized
	}

	filter := models.UserFilter{UUIDs: userUUIDs}
	if !recurse {
		filter.TenantUUID = &tenantUUID
	}

	users, err := f.userRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	items := make([]dto.UserPresenceDTO, 0, len(users))
	for _, user := range users {
		items = append(items, ToUserPresenceDTO(*user))
	}

	return &dto.PresenceListResponse{Items: items, Total: len(items)}, nil
}

func (f *presenceFlow) GetPresence(ctx context.Context, tenantUUID, userUUID uuid.UUID, recurse bool) (*dto.UserPresenceDTO, error) {
	if !f.status.Initialized() {
		return nil, ErrNotInitialized
	}

	if cached := f.cacheGet(ctx, userUUID); cached != nil {
		// The cached document is tenant-checked the same way a DB hit is.
		if recurse || cached.TenantUUID == tenantUUID.String() {
			return cached, nil
		}
		return nil, ErrUnknownUser
	}

	user, err := f.userRepo.ByUUID(ctx, userUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userUUID, err)
	}
	if user == nil {
		return nil, ErrUnknownUser
	}
	if !recurse && user.TenantUUID != tenantUUID {
		return nil, ErrUnknownUser
	}

	presence := ToUserPresenceDTO(*user)
	f.cacheSet(ctx, userUUID, &presence)
	return &presence, nil
}

func (f *presenceFlow) UpdatePresence(ctx context.Context, tenantUUID uuid.UUID, req *dto.PutPresenceRequest) (*dto.UserPresenceDTO, error) {
	if !f.status.Initialized() {
		return nil, ErrNotInitialized
	}

	userUUID, err := uuid.Parse(req.UUID)
	if err != nil {
		return nil, ErrInvalidPresenceData
	}
	if !models.IsValidUserState(req.State) {
		return nil, ErrInvalidPresenceData
	}

	var updated *models.User
	err = f.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		user, err := f.userRepo.ByUUID(txCtx, userUUID)
		if err != nil {
			return fmt.Errorf("failed to get user %s: %w", userUUID, err)
		}
		if user == nil || user.TenantUUID != tenantUUID {
			return ErrUnknownUser
		}

		now := utils.UTCNow()
		if err := f.userRepo.UpdatePresence(txCtx, userUUID, req.State, req.Status, &now); err != nil {
			return fmt.Errorf("failed to update presence for user %s: %w", userUUID, err)
		}

		user, err = f.userRepo.ByUUID(txCtx, userUUID)
		if err != nil {
			return fmt.Errorf("failed to reload user %s: %w", userUUID, err)
		}
		if user == nil {
			return ErrUnknownUser
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.cacheInvalidate(ctx, userUUID)

	if err := f.notifier.PresenceUpdated(ctx, *updated); err != nil {
		f.logger.Warn("failed to publish presence update",
			zap.String("user_uuid", userUUID.String()),
			zap.Error(err))
	}

	presence := ToUserPresenceDTO(*updated)
	return &presence, nil
}

func (f *presenceFlow) cacheKey(userUUID uuid.UUID) string {
	return f.cachePrefix + "presence:" + userUUID.String()
}

func (f *presenceFlow) cacheGet(ctx context.Context, userUUID uuid.UUID) *dto.UserPresenceDTO {
	if f.cache == nil {
		return nil
	}
	raw, err := f.cache.Get(ctx, f.cacheKey(userUUID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			f.logger.Debug("presence cache read failed", zap.Error(err))
		}
		return nil
	}
	var presence dto.UserPresenceDTO
	if err := json.Unmarshal(raw, &presence); err != nil {
		f.cacheInvalidate(ctx, userUUID)
		return nil
	}
	return &presence
}

func (f *presenceFlow) cacheSet(ctx context.Context, userUUID uuid.UUID, presence *dto.UserPresenceDTO) {
	if f.cache == nil {
		return
	}
	raw, err := json.Marshal(presence)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, f.cacheKey(userUUID), raw, f.cacheTTL).Err(); err != nil {
		f.logger.Debug("presence cache write failed", zap.Error(err))
	}
}

func (f *presenceFlow) cacheInvalidate(ctx context.Context, userUUID uuid.UUID) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Del(ctx, f.cacheKey(userUUID)).Err(); err != nil {
		f.logger.Debug("presence cache invalidation failed", zap.Error(err))
	}
}
