package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	businessflow "github.com/callwatch/presenced/business_flow"
	"github.com/callwatch/presenced/models"
)

type fakeTxManager struct{}

func (fakeTxManager) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type fakeNotifier struct {
	updated []models.User
}

func (n *fakeNotifier) PresenceUpdated(ctx context.Context, user models.User) error {
	n.updated = append(n.updated, user)
	return nil
}

func (n *fakeNotifier) TeamsSyncStarted(ctx context.Context, userUUID, tenantUUID uuid.UUID) error {
	return nil
}

func (n *fakeNotifier) TeamsSyncStopped(ctx context.Context, userUUID, tenantUUID uuid.UUID) error {
	return nil
}

type fakeTenantRepo struct{}

func (fakeTenantRepo) ByUUID(ctx context.Context, u uuid.UUID) (*models.Tenant, error) {
	return nil, nil
}
func (fakeTenantRepo) List(ctx context.Context) ([]*models.Tenant, error) { return nil, nil }
func (fakeTenantRepo) Save(ctx context.Context, tenant *models.Tenant) error {
	return nil
}
func (fakeTenantRepo) FindOrCreate(ctx context.Context, u uuid.UUID) (*models.Tenant, error) {
	return &models.Tenant{UUID: u}, nil
}
func (fakeTenantRepo) Delete(ctx context.Context, u uuid.UUID) error { return nil }

type fakeUserRepo struct {
	users    map[uuid.UUID]models.User
	sessions map[uuid.UUID]models.Session
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:    make(map[uuid.UUID]models.User),
		sessions: make(map[uuid.UUID]models.Session),
	}
}

func (r *fakeUserRepo) ByUUID(ctx context.Context, u uuid.UUID) (*models.User, error) {
	user, ok := r.users[u]
	if !ok {
		return nil, nil
	}
	user.Sessions = nil
	for _, s := range r.sessions {
		if s.UserUUID == u {
			user.Sessions = append(user.Sessions, s)
		}
	}
	return &user, nil
}

func (r *fakeUserRepo) List(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	return nil, nil
}

func (r *fakeUserRepo) Save(ctx context.Context, user *models.User) error {
	r.users[user.UUID] = *user
	return nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, u uuid.UUID) error {
	delete(r.users, u)
	return nil
}

func (r *fakeUserRepo) UpdatePresence(ctx context.Context, u uuid.UUID, state string, status *string, lastActivity *time.Time) error {
	return nil
}

func (r *fakeUserRepo) SetDoNotDisturb(ctx context.Context, u uuid.UUID, enabled bool) error {
	return nil
}

func (r *fakeUserRepo) AddSession(ctx context.Context, session *models.Session) error {
	r.sessions[session.UUID] = *session
	return nil
}

func (r *fakeUserRepo) RemoveSession(ctx context.Context, userUUID, sessionUUID uuid.UUID) error {
	delete(r.sessions, sessionUUID)
	return nil
}

func (r *fakeUserRepo) AddRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	return nil
}

func (r *fakeUserRepo) RemoveRefreshToken(ctx context.Context, userUUID uuid.UUID, clientID string) error {
	return nil
}

type fakeLineRepo struct {
	lines map[int]models.Line
}

func newFakeLineRepo() *fakeLineRepo {
	return &fakeLineRepo{lines: make(map[int]models.Line)}
}

func (r *fakeLineRepo) ByID(ctx context.Context, id int) (*models.Line, error) {
	line, ok := r.lines[id]
	if !ok {
		return nil, nil
	}
	return &line, nil
}

func (r *fakeLineRepo) ByEndpointName(ctx context.Context, endpointName string) (*models.Line, error) {
	for _, line := range r.lines {
		if line.EndpointName != nil && *line.EndpointName == endpointName {
			return &line, nil
		}
	}
	return nil, nil
}

func (r *fakeLineRepo) List(ctx context.Context) ([]*models.Line, error) { return nil, nil }

func (r *fakeLineRepo) Save(ctx context.Context, line *models.Line) error {
	r.lines[line.ID] = *line
	return nil
}

func (r *fakeLineRepo) Delete(ctx context.Context, id int) error {
	delete(r.lines, id)
	return nil
}

func (r *fakeLineRepo) AssociateEndpoint(ctx context.Context, id int, endpointName string) error {
	line := r.lines[id]
	line.EndpointName = &endpointName
	r.lines[id] = line
	return nil
}

type fakeEndpointRepo struct {
	states map[string]string
}

func newFakeEndpointRepo() *fakeEndpointRepo {
	return &fakeEndpointRepo{states: make(map[string]string)}
}

func (r *fakeEndpointRepo) ByName(ctx context.Context, name string) (*models.Endpoint, error) {
	return nil, nil
}

func (r *fakeEndpointRepo) FindOrCreate(ctx context.Context, name string) (*models.Endpoint, error) {
	if _, ok := r.states[name]; !ok {
		r.states[name] = models.EndpointStateUnavailable
	}
	return &models.Endpoint{Name: name, State: r.states[name]}, nil
}

func (r *fakeEndpointRepo) Save(ctx context.Context, endpoint *models.Endpoint) error {
	r.states[endpoint.Name] = endpoint.State
	return nil
}

func (r *fakeEndpointRepo) UpdateState(ctx context.Context, name, state string) (bool, error) {
	if r.states[name] == state {
		return false, nil
	}
	r.states[name] = state
	return true, nil
}

func (r *fakeEndpointRepo) DeleteAll(ctx context.Context) error {
	r.states = make(map[string]string)
	return nil
}

type fakeChannelRepo struct {
	channels map[string]models.Channel
}

func newFakeChannelRepo() *fakeChannelRepo {
	return &fakeChannelRepo{channels: make(map[string]models.Channel)}
}

func (r *fakeChannelRepo) ByName(ctx context.Context, name string) (*models.Channel, error) {
	channel, ok := r.channels[name]
	if !ok {
		return nil, nil
	}
	return &channel, nil
}

func (r *fakeChannelRepo) Save(ctx context.Context, channel *models.Channel) error {
	if _, ok := r.channels[channel.Name]; ok {
		return nil
	}
	r.channels[channel.Name] = *channel
	return nil
}

func (r *fakeChannelRepo) UpdateState(ctx context.Context, name, state string) error {
	channel, ok := r.channels[name]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	channel.State = state
	r.channels[name] = channel
	return nil
}

func (r *fakeChannelRepo) Delete(ctx context.Context, name string) error {
	delete(r.channels, name)
	return nil
}

func (r *fakeChannelRepo) DeleteAll(ctx context.Context) error {
	r.channels = make(map[string]models.Channel)
	return nil
}

type eventFixture struct {
	handler      *EventHandler
	userRepo     *fakeUserRepo
	lineRepo     *fakeLineRepo
	endpointRepo *fakeEndpointRepo
	channelRepo  *fakeChannelRepo
	notifier     *fakeNotifier
}

func newEventFixture() *eventFixture {
	f := &eventFixture{
		userRepo:     newFakeUserRepo(),
		lineRepo:     newFakeLineRepo(),
		endpointRepo: newFakeEndpointRepo(),
		channelRepo:  newFakeChannelRepo(),
		notifier:     &fakeNotifier{},
	}
	f.handler = NewEventHandler(
		fakeTenantRepo{}, f.userRepo, f.lineRepo, f.endpointRepo, f.channelRepo,
		fakeTxManager{}, f.notifier, nil, nil, zap.NewNop())
	return f
}

func (f *eventFixture) addUser() uuid.UUID {
	userUUID := uuid.New()
	f.userRepo.users[userUUID] = models.User{
		UUID:       userUUID,
		TenantUUID: uuid.New(),
		State:      models.UserStateAvailable,
	}
	return userUUID
}

func (f *eventFixture) addLine(userUUID uuid.UUID, id int, endpointName string) {
	f.lineRepo.lines[id] = models.Line{ID: id, UserUUID: userUUID, EndpointName: &endpointName}
	f.endpointRepo.states[endpointName] = models.EndpointStateAvailable
}

func TestSessionCreatedReplayIsIdempotent(t *testing.T) {
	f := newEventFixture()
	userUUID := f.addUser()
	sessionUUID := uuid.New()

	fn := decode(f.handler.onSessionCreated)
	body := []byte(fmt.Sprintf(
		`{"name": "auth_session_created", "data": {"uuid": %q, "user_uuid": %q, "mobile": true}}`,
		sessionUUID, userUUID))

	require.NoError(t, fn(context.Background(), body))
	require.Len(t, f.notifier.updated, 1)
	assert.Equal(t, userUUID, f.notifier.updated[0].UUID)
	require.Len(t, f.notifier.updated[0].Sessions, 1)
	assert.True(t, f.notifier.updated[0].Sessions[0].Mobile)

	// A replayed delivery supersedes by session uuid instead of duplicating.
	require.NoError(t, fn(context.Background(), body))
	assert.Len(t, f.userRepo.sessions, 1)
	assert.Len(t, f.notifier.updated, 2)
}

func TestSessionCreatedUnknownUserDropped(t *testing.T) {
	f := newEventFixture()

	fn := decode(f.handler.onSessionCreated)
	body := []byte(fmt.Sprintf(
		`{"name": "auth_session_created", "data": {"uuid": %q, "user_uuid": %q, "mobile": false}}`,
		uuid.New(), uuid.New()))

	err := fn(context.Background(), body)
	require.Error(t, err)
	assert.True(t, businessflow.IsUnknownEntity(err))
	assert.Empty(t, f.notifier.updated)
}

func TestDeviceStateUnchangedEmitsNoNotify(t *testing.T) {
	f := newEventFixture()
	userUUID := f.addUser()
	f.addLine(userUUID, 1, "PJSIP/abc")

	fn := decode(f.handler.onDeviceStateChanged)
	body := []byte(`{"name": "DeviceStateChange", "data": {"Device": "PJSIP/abc", "State": "UNAVAILABLE"}}`)

	require.NoError(t, fn(context.Background(), body))
	require.Len(t, f.notifier.updated, 1)

	// The same state again is a no-op with no broadcast.
	require.NoError(t, fn(context.Background(), body))
	assert.Len(t, f.notifier.updated, 1)
}

func TestUnholdSetsStateFromDescription(t *testing.T) {
	f := newEventFixture()
	userUUID := f.addUser()
	f.addLine(userUUID, 1, "PJSIP/abc")
	f.channelRepo.channels["PJSIP/abc-00000001"] = models.Channel{
		Name: "PJSIP/abc-00000001", LineID: 1, State: models.ChannelStateHolding,
	}

	fn := decode(f.handler.onChannelUnhold)

	body := []byte(`{"name": "Unhold", "data": {"Channel": "PJSIP/abc-00000001", "ChannelStateDesc": "Up"}}`)
	require.NoError(t, fn(context.Background(), body))
	assert.Equal(t, models.ChannelStateTalking, f.channelRepo.channels["PJSIP/abc-00000001"].State)

	body = []byte(`{"name": "Unhold", "data": {"Channel": "PJSIP/abc-00000001", "ChannelStateDesc": "Down"}}`)
	require.NoError(t, fn(context.Background(), body))
	assert.Equal(t, models.ChannelStateUndefined, f.channelRepo.channels["PJSIP/abc-00000001"].State)
}

func TestChannelWithoutSuffixIsDropped(t *testing.T) {
	f := newEventFixture()
	userUUID := f.addUser()
	f.addLine(userUUID, 1, "nodash")

	fn := decode(f.handler.onChannelCreated)
	body := []byte(`{"name": "Newchannel", "data": {"Channel": "nodash", "ChannelStateDesc": "Ring"}}`)

	err := fn(context.Background(), body)
	require.Error(t, err)
	assert.True(t, businessflow.IsUnknownEntity(err))
	assert.Empty(t, f.channelRepo.channels)
	assert.Empty(t, f.notifier.updated)
}

func TestStateChangeForUnknownChannelIsDropped(t *testing.T) {
	f := newEventFixture()
	userUUID := f.addUser()
	f.addLine(userUUID, 1, "PJSIP/abc")

	fn := decode(f.handler.onChannelStateChanged)
	body := []byte(`{"name": "Newstate", "data": {"Channel": "PJSIP/abc-00000001", "ChannelStateDesc": "Up"}}`)

	err := fn(context.Background(), body)
	require.Error(t, err)
	assert.True(t, businessflow.IsUnknownEntity(err))
	assert.Empty(t, f.notifier.updated)
}
