package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensnatch/snatchd/pkg/types"
)

func TestClientSendsBearerKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]string{"tokyo"})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	aliases, err := c.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tokyo"}, aliases)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestClientUnwrapsErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "micro quota exceeded: 2 existing + 1 requested > 2"})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.LaunchInstance(context.Background(), "tokyo", types.SnatchDetails{
		Shape: "VM.Standard.E2.1.Micro", OS: "Canonical Ubuntu",
	})
	require.Error(t, err)
	assert.Equal(t, "micro quota exceeded: 2 existing + 1 requested > 2", err.Error())
}

func TestClientTaskLifecycleCalls(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/tokyo/launch-instance":
			json.NewEncoder(w).Encode(map[string][]string{"task_ids": {"t1", "t2"}})
		case "/task_status/t1":
			json.NewEncoder(w).Encode(map[string]string{
				"status": "running", "result": "{}", "type": "snatch",
			})
		case "/tasks/t1/stop":
			json.NewEncoder(w).Encode(map[string]bool{"success": true})
		case "/tasks/resume":
			var body map[string][]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"t1"}, body["task_ids"])
			json.NewEncoder(w).Encode(map[string]interface{}{
				"resumed": []string{"t1"}, "failed": map[string]string{},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	ctx := context.Background()

	ids, err := c.LaunchInstance(ctx, "tokyo", types.SnatchDetails{Shape: "S", OS: "O"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids)

	status, _, taskType, err := c.TaskStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "running", status)
	assert.Equal(t, "snatch", taskType)

	require.NoError(t, c.StopTask(ctx, "t1"))

	resumed, failed, err := c.ResumeTasks(ctx, []string{"t1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, resumed)
	assert.Empty(t, failed)

	assert.Equal(t, []string{
		"POST /tokyo/launch-instance",
		"GET /task_status/t1",
		"POST /tasks/t1/stop",
		"POST /tasks/resume",
	}, paths)
}
