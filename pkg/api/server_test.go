package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-ai/mnemosyne/pkg/eventlog"
	"github.com/mnemosyne-ai/mnemosyne/pkg/executor"
	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/optimizer"
	"github.com/mnemosyne-ai/mnemosyne/pkg/orchestrator"
	"github.com/mnemosyne-ai/mnemosyne/pkg/registry"
	"github.com/mnemosyne-ai/mnemosyne/pkg/reviewer"
	"github.com/mnemosyne-ai/mnemosyne/pkg/storage"
	"github.com/mnemosyne-ai/mnemosyne/pkg/workqueue"
)

// emptySkills is a SkillCatalog with nothing in it; the happy-path submit
// test never registers an agent, so the Optimizer is never actually invoked.
type emptySkills struct{}

func (emptySkills) List() ([]optimizer.Skill, error) { return nil, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := eventlog.NewBus()
	log := eventlog.New(store, bus, 10*time.Millisecond, time.Second, 3)

	queue := workqueue.New(store, 4)
	reg := registry.New()
	opt := optimizer.New(store, nil, log, emptySkills{}, 5, nil)
	exec := executor.New(store, nil, nil, t.TempDir(), 2)
	rev := reviewer.New(nil)

	orch := orchestrator.New(store, queue, reg, log, opt, exec, rev, time.Minute, nil)

	return New(ids.NewInstanceId(), store, orch, log, bus)
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		data, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.InstanceID)
}

func TestHandleSubmitHappyPath(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/work", SubmitRequest{
		Intent:    "add a retry budget to the HTTP client",
		Namespace: "global",
		Priority:  5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.WorkItemID)

	_, err := ids.ParseWorkItemId(resp.WorkItemID)
	assert.NoError(t, err)
}

func TestHandleSubmitInvalidNamespace(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/work", SubmitRequest{
		Intent:    "whatever",
		Namespace: "not-a-namespace",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSubmitUnknownDependency(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/work", SubmitRequest{
		Intent:       "depends on nothing real",
		Namespace:    "global",
		Dependencies: []string{ids.NewWorkItemId().String()},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(orchestrator.KindUnknownDependency), resp.Kind)
}

func TestHandleStatusNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/work/"+ids.NewWorkItemId().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStatusInvalidID(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/work/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSubmitThenStatus(t *testing.T) {
	s := newTestServer(t)
	submitRec := doRequest(s, http.MethodPost, "/work", SubmitRequest{
		Intent:    "status roundtrip",
		Namespace: "global",
	})
	require.Equal(t, http.StatusCreated, submitRec.Code)
	var submitResp SubmitResponse
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &submitResp))

	statusRec := doRequest(s, http.MethodGet, "/work/"+submitResp.WorkItemID, nil)
	require.Equal(t, http.StatusOK, statusRec.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
	assert.Equal(t, submitResp.WorkItemID, status.WorkItemID)
	// The dispatch pass inside HandleSubmit fast-forwards a ready item to
	// Plan even when no agent is registered.
	assert.Equal(t, "plan", status.Phase)
}

func TestHandleCancel(t *testing.T) {
	s := newTestServer(t)
	submitRec := doRequest(s, http.MethodPost, "/work", SubmitRequest{
		Intent:    "to be cancelled",
		Namespace: "global",
	})
	require.Equal(t, http.StatusCreated, submitRec.Code)
	var submitResp SubmitResponse
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &submitResp))

	cancelRec := doRequest(s, http.MethodPost, "/work/"+submitResp.WorkItemID+"/cancel", nil)
	assert.Equal(t, http.StatusNoContent, cancelRec.Code)

	secondCancel := doRequest(s, http.MethodPost, "/work/"+submitResp.WorkItemID+"/cancel", nil)
	assert.Equal(t, http.StatusInternalServerError, secondCancel.Code)
}


