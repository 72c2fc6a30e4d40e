package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

type recordingDispatcher struct {
	err  error
	envs []events.Envelope
	cids []string
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, env events.Envelope) error {
	d.envs = append(d.envs, env)
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	d.cids = append(d.cids, cid)
	return d.err
}

type stubOutbox struct{}

func (stubOutbox) Replay(_ context.Context, id string) (*models.OutboxMessage, error) {
	if id != "M1" {
		return nil, utils.NewNotFoundError(models.CollectionOutbox, id)
	}
	return &models.OutboxMessage{Id: "M1", Status: models.OutboxStatusPending}, nil
}

type stubHealth struct{ score *models.HealthScore }

func (s stubHealth) Latest(context.Context) (*models.HealthScore, error) {
	if s.score == nil {
		return nil, utils.NewNotFoundError(models.CollectionHealthScores, "latest")
	}
	return s.score, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func serve(t *testing.T, s opsServer, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	newRouter(s).ServeHTTP(w, req)
	return w
}

func TestDispatchEndpoint(t *testing.T) {
	d := &recordingDispatcher{}
	s := opsServer{dispatcher: d, outbox: stubOutbox{}, health: stubHealth{}, logger: quietLogger()}
	body, err := json.Marshal(events.New(events.OrderCancelled{OrderId: "O1"}, time.Now()))
	require.NoError(t, err)

	w := serve(t, s, http.MethodPost, "/internal/ops/events", body, map[string]string{"x-correlation-id": "c-1"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "c-1", w.Header().Get("x-correlation-id"))
	require.Len(t, d.envs, 1)
	assert.Equal(t, events.OrderCancelled{OrderId: "O1"}, d.envs[0].Payload)
	assert.Equal(t, "c-1", d.cids[0])

	w = serve(t, s, http.MethodPost, "/internal/ops/events", []byte(`{"id":"e","kind":"Nope"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, d.envs, 1)

	d.err = utils.NewValidationError(utils.CodeInsufficientInventory, "short")
	w = serve(t, s, http.MethodPost, "/internal/ops/events", body, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotEmpty(t, w.Header().Get("x-correlation-id"))
}

func TestOutboxReplayAndHealthEndpoints(t *testing.T) {
	s := opsServer{dispatcher: &recordingDispatcher{}, outbox: stubOutbox{}, health: stubHealth{}, logger: quietLogger()}

	w := serve(t, s, http.MethodPost, "/internal/ops/outbox/M1/replay", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"PENDING"`)

	w = serve(t, s, http.MethodPost, "/internal/ops/outbox/M9/replay", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, s, http.MethodGet, "/internal/ops/health/latest", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.health = stubHealth{score: &models.HealthScore{Id: "H1", Overall: 79, Trend: models.TrendImproving}}
	w = serve(t, s, http.MethodGet, "/internal/ops/health/latest", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var got models.HealthScore
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 79.0, got.Overall)

	w = serve(t, s, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
