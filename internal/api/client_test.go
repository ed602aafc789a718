package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/api"
)

func TestStartDiscussion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/discussions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "caching strategy", body["topic"])
		assert.Equal(t, "grp-1", body["group_id"])

		w.Header().Set(api.SessionIDHeader, "sess-42")
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n")
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer server.Close()

	client := api.New(server.URL, "sk-test")
	handle, err := client.StartDiscussion(context.Background(), "caching strategy", "grp-1")
	require.NoError(t, err)
	defer handle.Body.Close()

	assert.Equal(t, "sess-42", handle.SessionID)

	data, err := io.ReadAll(handle.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DONE]")
}

func TestSubmitHumanInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/discussions/sess-42/input", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Alice", body["agent_name"])
		assert.Equal(t, "looks good", body["message"])

		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer server.Close()

	client := api.New(server.URL, "sk-test")
	err := client.SubmitHumanInput(context.Background(), "sess-42", "Alice", "looks good")
	require.NoError(t, err)
}

func TestSubmitHumanInput_SessionGone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := api.New(server.URL, "sk-test")
	err := client.SubmitHumanInput(context.Background(), "stale", "Alice", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrSessionGone)
	assert.True(t, api.IsNotFound(err))
}

func TestDiscussionStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/discussions/sess-42/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status":             "waiting_for_human",
			"waiting_agent_name": "Alice",
		})
	}))
	defer server.Close()

	client := api.New(server.URL, "sk-test")
	st, err := client.DiscussionStatus(context.Background(), "sess-42")
	require.NoError(t, err)

	assert.Equal(t, api.StatusWaitingForHuman, st.Status)
	assert.Equal(t, "Alice", st.WaitingAgent)
	assert.Equal(t, "sess-42", st.SessionID, "session id backfilled when response omits it")
	assert.True(t, st.Status.Live())
}

func TestHumanRoles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]api.HumanRole{
			{Name: "Alice", HostRole: "Architect"},
			{Name: "Bob"},
		})
	}))
	defer server.Close()

	client := api.New(server.URL, "")
	roles, err := client.HumanRoles(context.Background(), "sess-42")
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "Alice", roles[0].Name)
	assert.Equal(t, "Architect", roles[0].HostRole)
}

func TestActiveSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/discussions/active", r.URL.Path)
		json.NewEncoder(w).Encode([]api.SessionStatus{
			{SessionID: "sess-1", Status: api.StatusEnded},
			{SessionID: "sess-2", Status: api.StatusRunning},
		})
	}))
	defer server.Close()

	client := api.New(server.URL, "")
	sessions, err := client.ActiveSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.False(t, sessions[0].Status.Live())
	assert.True(t, sessions[1].Status.Live())
}

func TestListGroups(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/groups", r.URL.Path)
		json.NewEncoder(w).Encode([]api.Group{
			{ID: "grp-1", Name: "design-review", Mode: "round_robin"},
		})
	}))
	defer server.Close()

	client := api.New(server.URL, "")
	groups, err := client.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "design-review", groups[0].Name)
}

func TestStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := api.New(server.URL, "")
	_, err := client.ListGroups(context.Background())
	require.Error(t, err)

	var se *api.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.Code)
	assert.Contains(t, se.Error(), "boom")
	assert.False(t, api.IsNotFound(err))
}
