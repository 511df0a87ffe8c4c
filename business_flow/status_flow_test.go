package businessflow

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestStatusAggregatorDefaults(t *testing.T) {
	status := NewStatusAggregator()
	snapshot := status.Snapshot()

	assert.Equal(t, StatusOK, snapshot[ComponentRestAPI]["status"])
	assert.Equal(t, StatusFail, snapshot[ComponentBusConsumer]["status"])
	assert.Equal(t, StatusFail, snapshot[ComponentPresenceInit]["status"])
	assert.Equal(t, StatusFail, snapshot[ComponentMasterTenant]["status"])
	assert.False(t, status.Initialized())
}

func TestStatusAggregatorTransitions(t *testing.T) {
	status := NewStatusAggregator()

	status.SetOK(ComponentBusConsumer)
	assert.Equal(t, StatusOK, status.Snapshot()[ComponentBusConsumer]["status"])

	status.SetFail(ComponentBusConsumer)
	assert.Equal(t, StatusFail, status.Snapshot()[ComponentBusConsumer]["status"])
}

func TestStatusAggregatorInitializedIsSticky(t *testing.T) {
	status := NewStatusAggregator()

	status.MarkInitialized()
	assert.True(t, status.Initialized())
	assert.Equal(t, StatusOK, status.Snapshot()[ComponentPresenceInit]["status"])

	// A later re-bootstrap failure flags the component but the service
	// keeps serving from its existing state.
	status.SetFail(ComponentPresenceInit)
	assert.True(t, status.Initialized())
	assert.Equal(t, StatusFail, status.Snapshot()[ComponentPresenceInit]["status"])
}

func TestStatusAggregatorMasterTenant(t *testing.T) {
	status := NewStatusAggregator()

	_, ok := status.MasterTenant()
	assert.False(t, ok)
	assert.False(t, status.IsMasterTenant(uuid.New()))

	master := uuid.New()
	status.SetMasterTenant(master)

	got, ok := status.MasterTenant()
	assert.True(t, ok)
	assert.Equal(t, master, got)
	assert.True(t, status.IsMasterTenant(master))
	assert.False(t, status.IsMasterTenant(uuid.New()))
	assert.Equal(t, StatusOK, status.Snapshot()[ComponentMasterTenant]["status"])
}
