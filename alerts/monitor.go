// Package alerts persists executive alerts, suppresses duplicates and drives
// the alert lifecycle.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

// Proposal is what a detector or cascade asks the monitor to raise.
type Proposal struct {
	Type            models.AlertType
	Severity        models.Severity
	Title           string
	Message         string
	Source          string
	Metrics         map[string]any
	Recommendations []string
}

type Monitor struct {
	Store  store.Store
	Logger *logrus.Logger
	Now    func() time.Time
	NewID  func() string
}

func NewMonitor(s store.Store, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Monitor{
		Store:  s,
		Logger: logger,
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  uuid.NewString,
	}
}

var collections = []string{models.CollectionExecutiveAlerts}

// Propose persists p as an active alert unless an active alert with the same
// title exists. It reports the alert that is active afterwards and whether it
// was created by this call.
func (m *Monitor) Propose(ctx context.Context, p Proposal) (*models.ExecutiveAlert, bool, error) {
	var (
		alert   *models.ExecutiveAlert
		created bool
	)
	err := m.Store.Transaction(ctx, store.ReadWrite, collections, func(tx store.Tx) error {
		var err error
		alert, created, err = m.ProposeTx(tx, p)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	RecordProposal(p.Type, created)
	return alert, created, nil
}

// RecordProposal counts a committed proposal outcome.
func RecordProposal(t models.AlertType, created bool) {
	result := "deduplicated"
	if created {
		result = "created"
	}
	alertProposals.WithLabelValues(string(t), result).Inc()
}

// ProposeTx is Propose inside a transaction that already covers executiveAlerts.
// The caller reports the outcome with RecordProposal once tx commits.
func (m *Monitor) ProposeTx(tx store.Tx, p Proposal) (*models.ExecutiveAlert, bool, error) {
	if p.Title == "" {
		return nil, false, utils.NewValidationError(utils.CodeInvalidPayload, "alert title is required")
	}
	existing, err := activeByTitle(tx, p.Title)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		m.Logger.WithFields(logrus.Fields{
			"alert_id": existing.Id,
			"title":    p.Title,
		}).Debug("alert proposal deduplicated")
		return existing, false, nil
	}

	now := m.Now()
	alert := models.ExecutiveAlert{
		Id:              m.NewID(),
		Type:            p.Type,
		Severity:        p.Severity,
		Status:          models.AlertStatusActive,
		Title:           p.Title,
		Message:         p.Message,
		Source:          p.Source,
		Metrics:         p.Metrics,
		Recommendations: p.Recommendations,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.Add(models.CollectionExecutiveAlerts, alert.Id, alert); err != nil {
		return nil, false, err
	}
	return &alert, true, nil
}

func activeByTitle(tx store.Tx, title string) (*models.ExecutiveAlert, error) {
	found, err := store.Query[models.ExecutiveAlert](tx, models.CollectionExecutiveAlerts,
		store.Eq("title", title), store.Eq("status", models.AlertStatusActive))
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

func (m *Monitor) transition(ctx context.Context, id string, to models.AlertStatus, apply func(a *models.ExecutiveAlert, now time.Time)) (*models.ExecutiveAlert, error) {
	var out *models.ExecutiveAlert
	err := m.Store.Transaction(ctx, store.ReadWrite, collections, func(tx store.Tx) error {
		a, err := store.Get[models.ExecutiveAlert](tx, models.CollectionExecutiveAlerts, id)
		if errors.Is(err, store.ErrNotFound) {
			return utils.NewNotFoundError(models.CollectionExecutiveAlerts, id)
		}
		if err != nil {
			return err
		}
		if err := moveTo(a, to, m.Now(), apply); err != nil {
			return err
		}
		out = a
		return tx.Put(models.CollectionExecutiveAlerts, a.Id, a)
	})
	if err != nil {
		config.LogError(m.Logger, "alerts/monitor.go", "transition", fmt.Sprintf("%s -> %s", id, to), nil, err)
		return nil, err
	}
	return out, nil
}

func moveTo(a *models.ExecutiveAlert, to models.AlertStatus, now time.Time, apply func(a *models.ExecutiveAlert, now time.Time)) error {
	if !a.Status.CanTransition(to) {
		return utils.NewValidationError(utils.CodeInvalidTransition, "alert %s: %s -> %s", a.Id, a.Status, to)
	}
	a.Status = to
	a.UpdatedAt = now
	if apply != nil {
		apply(a, now)
	}
	return nil
}

func (m *Monitor) Acknowledge(ctx context.Context, id, by string) (*models.ExecutiveAlert, error) {
	return m.transition(ctx, id, models.AlertStatusAcknowledged, func(a *models.ExecutiveAlert, now time.Time) {
		a.AcknowledgedBy = by
		a.AcknowledgedAt = &now
	})
}

func (m *Monitor) Resolve(ctx context.Context, id, resolution string) (*models.ExecutiveAlert, error) {
	return m.transition(ctx, id, models.AlertStatusResolved, func(a *models.ExecutiveAlert, now time.Time) {
		a.Resolution = resolution
		a.ResolvedAt = &now
	})
}

func (m *Monitor) Snooze(ctx context.Context, id string, until time.Time) (*models.ExecutiveAlert, error) {
	if !until.After(m.Now()) {
		return nil, utils.NewValidationError(utils.CodeInvalidPayload, "snooze time %s is not in the future", until.Format(time.RFC3339))
	}
	return m.transition(ctx, id, models.AlertStatusSnoozed, func(a *models.ExecutiveAlert, _ time.Time) {
		u := until.UTC()
		a.SnoozedUntil = &u
	})
}

// WakeExpired reactivates snoozed alerts whose snooze has passed. When an
// active alert with the same title was raised meanwhile, the woken alert is
// resolved as superseded so titles stay unique among active alerts.
func (m *Monitor) WakeExpired(ctx context.Context) (woken, superseded int, err error) {
	now := m.Now()
	err = m.Store.Transaction(ctx, store.ReadWrite, collections, func(tx store.Tx) error {
		woken, superseded = 0, 0
		due, err := store.Query[models.ExecutiveAlert](tx, models.CollectionExecutiveAlerts,
			store.Eq("status", models.AlertStatusSnoozed), store.Lte("snoozed_until", now))
		if err != nil {
			return err
		}
		for i := range due {
			a := &due[i]
			active, err := activeByTitle(tx, a.Title)
			if err != nil {
				return err
			}
			if err := moveTo(a, models.AlertStatusActive, now, func(a *models.ExecutiveAlert, _ time.Time) {
				a.SnoozedUntil = nil
			}); err != nil {
				return err
			}
			if active != nil {
				err := moveTo(a, models.AlertStatusResolved, now, func(a *models.ExecutiveAlert, now time.Time) {
					a.Resolution = "superseded by " + active.Id
					a.ResolvedAt = &now
				})
				if err != nil {
					return err
				}
				superseded++
			} else {
				woken++
			}
			if err := tx.Put(models.CollectionExecutiveAlerts, a.Id, a); err != nil {
				return err
			}
		}
		return nil
	})
	return woken, superseded, err
}

// List returns alerts newest first, optionally filtered by status.
func (m *Monitor) List(ctx context.Context, status models.AlertStatus) ([]models.ExecutiveAlert, error) {
	var preds []store.Predicate
	if status != "" {
		preds = append(preds, store.Eq("status", status))
	}
	var out []models.ExecutiveAlert
	err := store.View(ctx, m.Store, collections, func(tx store.Tx) error {
		docs, err := tx.Query(models.CollectionExecutiveAlerts, preds...)
		if err != nil {
			return err
		}
		store.SortDocuments(docs, "created_at", true)
		out, err = store.Decode[models.ExecutiveAlert](docs)
		return err
	})
	return out, err
}
