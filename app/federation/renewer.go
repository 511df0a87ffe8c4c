package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/callwatch/presenced/app/services"
	"github.com/callwatch/presenced/utils"
)

// SubscriptionRenewer owns one user's Graph subscription: it creates it,
// renews it ahead of expiry and deletes it on shutdown.
type SubscriptionRenewer struct {
	f          *Federation
	userUUID   uuid.UUID
	tenantUUID uuid.UUID
	cancel     context.CancelFunc

	mu             sync.Mutex
	accessToken    string
	microsoftID    string
	state          string
	subscriptionID string
	expiration     time.Time
}

func newSubscriptionRenewer(f *Federation, userUUID, tenantUUID uuid.UUID) *SubscriptionRenewer {
	return &SubscriptionRenewer{
		f:          f,
		userUUID:   userUUID,
		tenantUUID: tenantUUID,
	}
}

func (r *SubscriptionRenewer) clientState() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *SubscriptionRenewer) run(ctx context.Context) {
	logger := r.f.logger.With(zap.String("user_uuid", r.userUUID.String()))

	domain, err := r.setup(ctx)
	if err != nil {
		logger.Warn("teams federation setup failed", zap.Error(err))
		return
	}

	if err := r.ensureSubscription(ctx, domain); err != nil {
		logger.Warn("failed to establish teams subscription", zap.Error(err))
		return
	}

	if err := r.f.notifier.TeamsSyncStarted(ctx, r.userUUID, r.tenantUUID); err != nil {
		logger.Warn("failed to announce teams sync start", zap.Error(err))
	}
	logger.Info("teams presence federation started")

	defer func() {
		// Best effort: the subscription expires on its own anyway.
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()
		r.mu.Lock()
		subscriptionID, accessToken := r.subscriptionID, r.accessToken
		r.mu.Unlock()
		if subscriptionID != "" {
			if err := r.f.graph.DeleteSubscription(cleanupCtx, accessToken, subscriptionID); err != nil {
				logger.Debug("failed to delete teams subscription", zap.Error(err))
			}
		}
		if err := r.f.notifier.TeamsSyncStopped(cleanupCtx, r.userUUID, r.tenantUUID); err != nil {
			logger.Warn("failed to announce teams sync stop", zap.Error(err))
		}
		logger.Info("teams presence federation stopped")
	}()

	for {
		r.mu.Lock()
		expiration := r.expiration
		r.mu.Unlock()

		wait := time.Until(expiration) - r.f.config.RenewalLeeway
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := r.renew(ctx); err != nil {
			logger.Warn("failed to renew teams subscription", zap.Error(err))
			return
		}
	}
}

// setup fetches the user's access token and the tenant's public domain,
// retrying a few times since the collaborators may still be starting.
func (r *SubscriptionRenewer) setup(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.f.config.SetupRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(r.f.config.SetupRetryDelay):
			}
		}

		token, err := r.f.auth.NewToken(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		accessToken, err := r.f.auth.ExternalTokenData(ctx, token.Token, r.userUUID)
		if err != nil {
			lastErr = err
			continue
		}
		ingresses, err := r.f.confd.ListIngressHTTP(ctx, token.Token, r.tenantUUID)
		if err != nil {
			lastErr = err
			continue
		}
		if len(ingresses) == 0 || ingresses[0].URI == "" {
			lastErr = fmt.Errorf("tenant %s has no HTTP ingress", r.tenantUUID)
			continue
		}

		microsoftID, err := r.f.graph.GetUserID(ctx, accessToken)
		if err != nil {
			lastErr = err
			continue
		}

		r.mu.Lock()
		r.accessToken = accessToken
		r.microsoftID = microsoftID
		r.mu.Unlock()
		return domainFromIngress(ingresses[0].URI), nil
	}
	return "", lastErr
}

// ensureSubscription creates the Graph subscription, adopting an existing
// one on conflict.
func (r *SubscriptionRenewer) ensureSubscription(ctx context.Context, domain string) error {
	r.mu.Lock()
	accessToken, microsoftID := r.accessToken, r.microsoftID
	r.mu.Unlock()

	resource := fmt.Sprintf("/communications/presences/%s", microsoftID)
	request := services.Subscription{
		Resource:           resource,
		ChangeType:         "updated",
		NotificationURL:    notificationURL(domain, r.userUUID),
		ExpirationDateTime: utils.UTCNow().Add(r.f.config.SubscriptionExpiry),
		ClientState:        uuid.NewString(),
	}

	created, err := r.f.graph.CreateSubscription(ctx, accessToken, request)
	if errors.Is(err, services.ErrGraphUnauthorized) {
		if accessToken, err = r.refreshAccessToken(ctx); err != nil {
			return err
		}
		created, err = r.f.graph.CreateSubscription(ctx, accessToken, request)
	}
	if errors.Is(err, services.ErrGraphConflict) {
		return r.adoptSubscription(ctx, accessToken, resource)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.subscriptionID = created.ID
	r.expiration = created.ExpirationDateTime
	r.state = request.ClientState
	r.mu.Unlock()
	return nil
}

// adoptSubscription takes over a subscription left behind by a previous
// process. Its client state is unknowable, so deliveries are accepted
// without one until the next renewal cycle replaces the subscription.
func (r *SubscriptionRenewer) adoptSubscription(ctx context.Context, accessToken, resource string) error {
	subscriptions, err := r.f.graph.ListSubscriptions(ctx, accessToken)
	if err != nil {
		return err
	}
	for _, sub := range subscriptions {
		if sub.Resource != resource || sub.ChangeType != "updated" {
			continue
		}
		r.mu.Lock()
		r.subscriptionID = sub.ID
		r.expiration = sub.ExpirationDateTime
		r.state = ""
		r.mu.Unlock()
		return nil
	}
	return fmt.Errorf("conflicting subscription for %s not found", resource)
}

func (r *SubscriptionRenewer) renew(ctx context.Context) error {
	r.mu.Lock()
	accessToken, subscriptionID := r.accessToken, r.subscriptionID
	r.mu.Unlock()

	expiration := utils.UTCNow().Add(r.f.config.SubscriptionExpiry)
	renewed, err := r.f.graph.RenewSubscription(ctx, accessToken, subscriptionID, expiration)
	if errors.Is(err, services.ErrGraphUnauthorized) {
		if accessToken, err = r.refreshAccessToken(ctx); err != nil {
			return err
		}
		renewed, err = r.f.graph.RenewSubscription(ctx, accessToken, subscriptionID, expiration)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.expiration = renewed.ExpirationDateTime
	r.mu.Unlock()
	return nil
}

// fetchPresence reads the user's current Teams presence from Graph
func (r *SubscriptionRenewer) fetchPresence(ctx context.Context) (*services.TeamsPresence, error) {
	r.mu.Lock()
	accessToken, microsoftID := r.accessToken, r.microsoftID
	r.mu.Unlock()

	presence, err := r.f.graph.GetPresence(ctx, accessToken, microsoftID)
	if errors.Is(err, services.ErrGraphUnauthorized) {
		if accessToken, err = r.refreshAccessToken(ctx); err != nil {
			return nil, err
		}
		presence, err = r.f.graph.GetPresence(ctx, accessToken, microsoftID)
	}
	return presence, err
}

func (r *SubscriptionRenewer) refreshAccessToken(ctx context.Context) (string, error) {
	token, err := r.f.auth.NewToken(ctx)
	if err != nil {
		return "", err
	}
	accessToken, err := r.f.auth.ExternalTokenData(ctx, token.Token, r.userUUID)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.accessToken = accessToken
	r.mu.Unlock()
	return accessToken, nil
}

func notificationURL(domain string, userUUID uuid.UUID) string {
	return fmt.Sprintf("https://%s/api/chatd/1.0/users/%s/teams/presence", domain, userUUID)
}

// domainFromIngress reduces an ingress URI to its host part
func domainFromIngress(uri string) string {
	domain := strings.TrimPrefix(uri, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return strings.TrimRight(domain, "/")
}
