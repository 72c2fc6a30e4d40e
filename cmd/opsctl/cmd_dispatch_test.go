package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/ops_backend/events"
)

func writeFile(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestReadEnvelopesSingleAndArray(t *testing.T) {
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	one := events.New(events.OrderCancelled{OrderId: "O1"}, at)
	two := events.New(events.OrderDelivered{OrderId: "O2", DeliveredAt: at}, at)

	envs, err := readEnvelopes(writeFile(t, one))
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, events.OrderCancelled{OrderId: "O1"}, envs[0].Payload)

	envs, err = readEnvelopes(writeFile(t, []events.Envelope{one, two}))
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, events.KindOrderDelivered, envs[1].Kind)
	assert.Equal(t, two.ID, envs[1].ID)
}

func TestReadEnvelopesRejectsUnknownKind(t *testing.T) {
	_, err := readEnvelopes(writeFile(t, map[string]any{"id": "e1", "kind": "nope"}))
	require.Error(t, err)
}
