package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callwatch/presenced/config"
)

func TestAuthClientListTenantsPaginates(t *testing.T) {
	tenants := make([]uuid.UUID, 5)
	for i := range tenants {
		tenants[i] = uuid.New()
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tenants", r.URL.Path)
		require.Equal(t, "test-token", r.Header.Get("X-Auth-Token"))

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		require.Equal(t, 2, limit)

		end := offset + limit
		if end > len(tenants) {
			end = len(tenants)
		}
		items := make([]map[string]string, 0)
		for _, u := range tenants[offset:end] {
			items = append(items, map[string]string{"uuid": u.String()})
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items, "total": len(tenants)})
	}))
	defer server.Close()

	client := NewAuthClient(&config.AuthConfig{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
	}, 2)

	got, err := client.ListTenants(context.Background(), "test-token")
	require.NoError(t, err)
	assert.Equal(t, tenants, got)
}

func TestAuthClientNewToken(t *testing.T) {
	tenantUUID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "svc", user)
		require.Equal(t, "secret", pass)

		fmt.Fprintf(w, `{"data": {"token": "abc", "metadata": {"tenant_uuid": %q}}}`, tenantUUID)
	}))
	defer server.Close()

	client := NewAuthClient(&config.AuthConfig{
		BaseURL:        server.URL,
		ServiceID:      "svc",
		ServiceKey:     "secret",
		TokenExpiry:    time.Minute,
		RequestTimeout: 5 * time.Second,
	}, 100)

	token, err := client.NewToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token.Token)
	assert.Equal(t, tenantUUID, token.TenantUUID)
}

func TestGraphClientErrorMapping(t *testing.T) {
	tests := []struct {
		status   int
		expected error
	}{
		{http.StatusUnauthorized, ErrGraphUnauthorized},
		{http.StatusConflict, ErrGraphConflict},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		client := NewGraphClient(&config.GraphConfig{
			BaseURL:        server.URL,
			RequestTimeout: 5 * time.Second,
		})

		_, err := client.CreateSubscription(context.Background(), "token", Subscription{
			Resource:   "/communications/presences/abc",
			ChangeType: "updated",
		})
		assert.ErrorIs(t, err, tt.expected)
		server.Close()
	}
}

func TestGraphClientGetPresence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/ms-user-id/presence", r.URL.Path)
		require.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"availability": "Busy", "activity": "InACall"}`)
	}))
	defer server.Close()

	client := NewGraphClient(&config.GraphConfig{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
	})

	presence, err := client.GetPresence(context.Background(), "access", "ms-user-id")
	require.NoError(t, err)
	assert.Equal(t, "Busy", presence.Availability)
	assert.Equal(t, "InACall", presence.Activity)
}

func TestConfdClientUpdateUserDND(t *testing.T) {
	userUUID := uuid.New()
	var gotBody map[string]bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, fmt.Sprintf("/users/%s/services/dnd", userUUID), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewConfdClient(&config.ConfdConfig{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
	}, 100)

	err := client.UpdateUserDND(context.Background(), "token", userUUID, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"enabled": true}, gotBody)
}

func TestIsReadTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewAmidClient(&config.AmidConfig{BaseURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Action(ctx, "token", ActionDeviceStateList)
	require.Error(t, err)
	assert.True(t, IsReadTimeout(err))

	assert.False(t, IsReadTimeout(fmt.Errorf("plain failure")))
	assert.False(t, IsReadTimeout(nil))
}
