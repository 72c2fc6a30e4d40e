// Package worker feeds domain events from a Pub/Sub subscription into the
// cascade orchestrator.
package worker

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

// Dispatcher runs one cascade. *workflow.Orchestrator satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, env events.Envelope) error
}

// Outcome tells the subscription what to do with a delivered message.
type Outcome int

const (
	// Ack removes the message: it was applied, skipped, or can never succeed.
	Ack Outcome = iota
	// Nack asks for redelivery after a transient failure.
	Nack
)

func (o Outcome) String() string {
	if o == Nack {
		return "nack"
	}
	return "ack"
}

type Consumer struct {
	Dispatcher Dispatcher
	Logger     *logrus.Logger

	// Timeout bounds one cascade including lock waits.
	Timeout time.Duration
}

func NewConsumer(d Dispatcher, logger *logrus.Logger) *Consumer {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Consumer{Dispatcher: d, Logger: logger, Timeout: time.Minute}
}

// HandleMessage decodes and dispatches one message body. Malformed bodies and
// validation failures are acked so they do not loop forever.
func (c *Consumer) HandleMessage(ctx context.Context, messageId string, data []byte) Outcome {
	env, err := events.Decode(data)
	if err != nil {
		config.LogError(c.Logger, "worker/consumer.go", "HandleMessage", "decode envelope", messageId, err)
		messagesHandled.WithLabelValues("unknown", "malformed").Inc()
		return Ack
	}

	ctx = utils.SetCorrelationIdInContext(ctx, messageId)
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	err = c.Dispatcher.Dispatch(ctx, env)
	outcome, label := classify(err)
	messagesHandled.WithLabelValues(string(env.Kind), label).Inc()
	if err != nil {
		c.Logger.WithFields(logrus.Fields{
			"field":      "worker",
			"message_id": messageId,
			"event_id":   env.ID,
			"kind":       env.Kind,
			"outcome":    outcome.String(),
		}).Error("cascade failed: " + err.Error())
	}
	return outcome
}

func classify(err error) (Outcome, string) {
	switch {
	case err == nil:
		return Ack, "applied"
	case utils.IsValidation(err):
		return Ack, "rejected"
	case errors.Is(err, context.Canceled):
		return Nack, "cancelled"
	}
	return Nack, "retry"
}

// Run receives from sub until ctx is done.
func (c *Consumer) Run(ctx context.Context, sub *pubsub.Subscription, maxOutstanding int) error {
	if maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	}
	c.Logger.WithField("subscription", sub.ID()).Info("worker receiving")
	err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.HandleMessage(ctx, msg.ID, msg.Data) == Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		config.LogError(c.Logger, "worker/consumer.go", "Run", "receive", sub.ID(), err)
		return err
	}
	return nil
}
