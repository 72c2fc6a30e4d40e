package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/store/memstore"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
	"bitbucket.org/mmdatafocus/ops_backend/workflow"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

type stubDispatcher struct {
	err  error
	seen []events.Envelope
}

func (s *stubDispatcher) Dispatch(_ context.Context, env events.Envelope) error {
	s.seen = append(s.seen, env)
	return s.err
}

func encode(t *testing.T, p events.Payload) []byte {
	t.Helper()
	b, err := json.Marshal(events.New(p, testNow))
	require.NoError(t, err)
	return b
}

func TestHandleMessageOutcomes(t *testing.T) {
	body := encode(t, events.OrderCancelled{OrderId: "O1"})
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"applied", nil, Ack},
		{"validation", utils.NewValidationError(utils.CodeInvalidTransition, "order O1 is delivered"), Ack},
		{"wrapped validation", &workflow.DispatchError{EventId: "e", Kind: events.KindOrderCancelled,
			Err: utils.NewValidationError(utils.CodeInvalidPayload, "bad")}, Ack},
		{"transient", &utils.TransactionError{Err: errors.New("deadlock")}, Nack},
		{"cancelled", context.Canceled, Nack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &stubDispatcher{err: tt.err}
			c := NewConsumer(d, quietLogger())
			assert.Equal(t, tt.want, c.HandleMessage(context.Background(), "m1", body))
			require.Len(t, d.seen, 1)
			assert.Equal(t, events.KindOrderCancelled, d.seen[0].Kind)
		})
	}
}

func TestHandleMessageAcksMalformedBodies(t *testing.T) {
	d := &stubDispatcher{}
	c := NewConsumer(d, quietLogger())

	assert.Equal(t, Ack, c.HandleMessage(context.Background(), "m1", []byte("{not json")))
	assert.Equal(t, Ack, c.HandleMessage(context.Background(), "m2", []byte(`{"id":"e1","kind":"order.teleported"}`)))
	assert.Empty(t, d.seen)
}

func TestHandleMessageRunsCascade(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	require.NoError(t, s.Transaction(ctx, store.ReadWrite, []string{models.CollectionInventory}, func(tx store.Tx) error {
		return tx.Put(models.CollectionInventory, "P1", models.Inventory{ProductId: "P1", OnHand: 10, Available: 10})
	}))
	orch := workflow.New(workflow.Deps{
		Store:      s,
		Thresholds: config.DefaultThresholds(),
		Logger:     quietLogger(),
		Now:        func() time.Time { return testNow },
	})
	c := NewConsumer(orch, quietLogger())

	order := models.Order{Id: "O1", CustomerId: "C1", Lines: []models.OrderLine{
		{ProductId: "P1", Quantity: 4, UnitPrice: decimal.NewFromInt(10)},
	}}
	assert.Equal(t, Ack, c.HandleMessage(ctx, "m1", encode(t, events.OrderCreated{Order: order})))

	// more than is available: rejected, never retried
	order.Id = "O2"
	order.Lines[0].Quantity = 50
	assert.Equal(t, Ack, c.HandleMessage(ctx, "m2", encode(t, events.OrderCreated{Order: order})))

	require.NoError(t, store.View(ctx, s, []string{models.CollectionInventory, models.CollectionOrders}, func(tx store.Tx) error {
		inv, err := store.Get[models.Inventory](tx, models.CollectionInventory, "P1")
		require.NoError(t, err)
		assert.Equal(t, 4.0, inv.Reserved)
		assert.Equal(t, 6.0, inv.Available)
		_, err = store.Get[models.Order](tx, models.CollectionOrders, "O2")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))
}
