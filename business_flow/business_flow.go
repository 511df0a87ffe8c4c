// Package businessflow contains the core business logic for presence reconciliation
package businessflow

import (
	"context"

	"github.com/callwatch/presenced/app/dto"
	"github.com/callwatch/presenced/models"
	"github.com/callwatch/presenced/utils"
	"github.com/google/uuid"
)

// Notifier publishes user-presence and Teams-federation lifecycle events to
// the bus. The bus package implements it.
type Notifier interface {
	PresenceUpdated(ctx context.Context, user models.User) error
	TeamsSyncStarted(ctx context.Context, userUUID, tenantUUID uuid.UUID) error
	TeamsSyncStopped(ctx context.Context, userUUID, tenantUUID uuid.UUID) error
}

// ToUserPresenceDTO serializes a user into its presence document. The
// derived fields (line_state, mobile, connected, per-line states) are
// recomputed here on every call; they are never read from storage.
func ToUserPresenceDTO(user models.User) dto.UserPresenceDTO {
	sessions := make([]dto.SessionPresenceDTO, 0, len(user.Sessions))
	for _, s := range user.Sessions {
		sessions = append(sessions, dto.SessionPresenceDTO{
			UUID:   s.UUID.String(),
			Mobile: s.Mobile,
		})
	}

	lines := make([]dto.LinePresenceDTO, 0, len(user.Lines))
	for _, l := range user.Lines {
		lines = append(lines, dto.LinePresenceDTO{
			ID:    l.ID,
			State: models.ComputeLineState(l),
		})
	}

	return dto.UserPresenceDTO{
		UUID:         user.UUID.String(),
		TenantUUID:   user.TenantUUID.String(),
		State:        user.State,
		Status:       user.Status,
		LastActivity: utils.FormatRFC3339Ptr(user.LastActivity),
		LineState:    models.ComputeUserLineState(user),
		DoNotDisturb: utils.IsTrue(user.DoNotDisturb),
		Mobile:       models.ComputeMobile(user),
		Connected:    models.ComputeConnected(user),
		Sessions:     sessions,
		Lines:        lines,
	}
}
