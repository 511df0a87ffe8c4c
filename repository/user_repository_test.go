package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callwatch/presenced/models"
	"github.com/callwatch/presenced/repository"
	apptesting "github.com/callwatch/presenced/testing"
	"github.com/callwatch/presenced/utils"
)

func setupDB(t *testing.T) *apptesting.TestDB {
	t.Helper()
	if !apptesting.GetTestDBConfig().Available() {
		t.Skip("TEST_DB_HOST not set")
	}
	testDB, err := apptesting.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testDB.Teardown())
	})
	return testDB
}

func TestUserRepositoryListFilters(t *testing.T) {
	testDB := setupDB(t)
	ctx := context.Background()
	repo := repository.NewUserRepository(testDB.DB)

	tenantA, err := apptesting.NewTenant(testDB.DB)
	require.NoError(t, err)
	tenantB, err := apptesting.NewTenant(testDB.DB)
	require.NoError(t, err)

	userA, err := apptesting.NewUser(testDB.DB, tenantA.UUID)
	require.NoError(t, err)
	userB, err := apptesting.NewUser(testDB.DB, tenantB.UUID)
	require.NoError(t, err)

	// No filter at all returns everyone.
	users, err := repo.List(ctx, models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 2)

	// Tenant scoping.
	users, err = repo.List(ctx, models.UserFilter{TenantUUIDs: &[]uuid.UUID{tenantA.UUID}})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, userA.UUID, users[0].UUID)

	// A pointer to an empty slice matches nothing, unlike a nil pointer.
	users, err = repo.List(ctx, models.UserFilter{UUIDs: &[]uuid.UUID{}})
	require.NoError(t, err)
	assert.Empty(t, users)

	users, err = repo.List(ctx, models.UserFilter{
		UUIDs:       &[]uuid.UUID{userA.UUID, userB.UUID},
		TenantUUIDs: &[]uuid.UUID{tenantB.UUID},
	})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, userB.UUID, users[0].UUID)
}

func TestUserRepositoryByUUIDLoadsRelations(t *testing.T) {
	testDB := setupDB(t)
	ctx := context.Background()
	repo := repository.NewUserRepository(testDB.DB)

	tenant, err := apptesting.NewTenant(testDB.DB)
	require.NoError(t, err)
	user, err := apptesting.NewUser(testDB.DB, tenant.UUID)
	require.NoError(t, err)
	_, err = apptesting.NewSession(testDB.DB, user.UUID, true)
	require.NoError(t, err)
	line, err := apptesting.NewLine(testDB.DB, 7, user.UUID, "PJSIP/abc")
	require.NoError(t, err)
	_, err = apptesting.NewChannel(testDB.DB, "PJSIP/abc-00000001", line.ID, models.ChannelStateTalking)
	require.NoError(t, err)

	got, err := repo.ByUUID(ctx, user.UUID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Sessions, 1)
	assert.True(t, got.Sessions[0].Mobile)
	require.Len(t, got.Lines, 1)
	require.NotNil(t, got.Lines[0].Endpoint)
	assert.Equal(t, "PJSIP/abc", got.Lines[0].Endpoint.Name)
	require.Len(t, got.Lines[0].Channels, 1)
	assert.Equal(t, models.ChannelStateTalking, got.Lines[0].Channels[0].State)

	missing, err := repo.ByUUID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepositoryAddSessionSupersedes(t *testing.T) {
	testDB := setupDB(t)
	ctx := context.Background()
	repo := repository.NewUserRepository(testDB.DB)

	tenant, err := apptesting.NewTenant(testDB.DB)
	require.NoError(t, err)
	userA, err := apptesting.NewUser(testDB.DB, tenant.UUID)
	require.NoError(t, err)
	userB, err := apptesting.NewUser(testDB.DB, tenant.UUID)
	require.NoError(t, err)

	sessionUUID := uuid.New()
	require.NoError(t, repo.AddSession(ctx, &models.Session{UUID: sessionUUID, UserUUID: userA.UUID, Mobile: false}))

	// The same session uuid showing up on another user replaces the old row.
	require.NoError(t, repo.AddSession(ctx, &models.Session{UUID: sessionUUID, UserUUID: userB.UUID, Mobile: true}))

	gotA, err := repo.ByUUID(ctx, userA.UUID)
	require.NoError(t, err)
	assert.Empty(t, gotA.Sessions)

	gotB, err := repo.ByUUID(ctx, userB.UUID)
	require.NoError(t, err)
	require.Len(t, gotB.Sessions, 1)
	assert.True(t, gotB.Sessions[0].Mobile)
}

func TestUserRepositoryUpdatePresence(t *testing.T) {
	testDB := setupDB(t)
	ctx := context.Background()
	repo := repository.NewUserRepository(testDB.DB)

	tenant, err := apptesting.NewTenant(testDB.DB)
	require.NoError(t, err)
	user, err := apptesting.NewUser(testDB.DB, tenant.UUID)
	require.NoError(t, err)

	now := utils.UTCNow().Truncate(time.Microsecond) // postgres precision
	err = repo.UpdatePresence(ctx, user.UUID, models.UserStateAway, utils.ToPtr("lunch"), &now)
	require.NoError(t, err)

	got, err := repo.ByUUID(ctx, user.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStateAway, got.State)
	require.NotNil(t, got.Status)
	assert.Equal(t, "lunch", *got.Status)
	require.NotNil(t, got.LastActivity)
	assert.WithinDuration(t, now, *got.LastActivity, 0)

	// Status clears when nil, last_activity survives.
	err = repo.UpdatePresence(ctx, user.UUID, models.UserStateAvailable, nil, nil)
	require.NoError(t, err)

	got, err = repo.ByUUID(ctx, user.UUID)
	require.NoError(t, err)
	assert.Nil(t, got.Status)
	require.NotNil(t, got.LastActivity)

	err = repo.UpdatePresence(ctx, uuid.New(), models.UserStateAway, nil, nil)
	assert.Error(t, err)
}

func TestUserRepositoryDeleteCascades(t *testing.T) {
	testDB := setupDB(t)
	ctx := context.Background()
	repo := repository.NewUserRepository(testDB.DB)

	tenant, err := apptesting.NewTenant(testDB.DB)
	require.NoError(t, err)
	user, err := apptesting.NewUser(testDB.DB, tenant.UUID)
	require.NoError(t, err)
	_, err = apptesting.NewSession(testDB.DB, user.UUID, false)
	require.NoError(t, err)
	line, err := apptesting.NewLine(testDB.DB, 9, user.UUID, "SCCP/1001")
	require.NoError(t, err)
	_, err = apptesting.NewChannel(testDB.DB, "SCCP/1001-0001", line.ID, models.ChannelStateRinging)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, user.UUID))

	got, err := repo.ByUUID(ctx, user.UUID)
	require.NoError(t, err)
	assert.Nil(t, got)

	var channels int64
	require.NoError(t, testDB.DB.Model(&models.Channel{}).Count(&channels).Error)
	assert.Zero(t, channels)
	var lines int64
	require.NoError(t, testDB.DB.Model(&models.Line{}).Count(&lines).Error)
	assert.Zero(t, lines)
}
