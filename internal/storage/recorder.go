// internal/storage/recorder.go
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vanlt3/LifeTime-Swing/internal/detector"
	"github.com/vanlt3/LifeTime-Swing/internal/events"
	"github.com/vanlt3/LifeTime-Swing/internal/storage/models"
)

// Recorder writes hit lifecycle events to the journal.
type Recorder struct {
	journal Journal
	logger  *zap.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(journal Journal, logger *zap.Logger) *Recorder {
	return &Recorder{journal: journal, logger: logger.Named("hit_recorder")}
}

// Attach subscribes the recorder to the hit lifecycle events of bus.
func (r *Recorder) Attach(bus *events.Bus) []events.Subscription {
	types := []events.EventType{
		events.HitDetected,
		events.PositionClosed,
		events.CloseExhausted,
		events.CloseSkipped,
	}
	subs := make([]events.Subscription, 0, len(types))
	for _, t := range types {
		subs = append(subs, bus.Subscribe(t, r))
	}
	return subs
}

// Handle implements events.Handler.
func (r *Recorder) Handle(ctx context.Context, event events.Event) error {
	var rec *models.HitRecord

	switch ev := event.(type) {
	case events.HitEvent:
		rec = hitRecord(ev.ID(), ev.Result, models.OutcomeDetected)
	case events.CloseEvent:
		var outcome string
		switch ev.Type() {
		case events.PositionClosed:
			outcome = models.OutcomeClosed
		case events.CloseExhausted:
			outcome = models.OutcomeExhausted
		case events.CloseSkipped:
			outcome = models.OutcomeSkipped
		default:
			return nil
		}
		rec = hitRecord(ev.ID(), ev.Result, outcome)
		rec.Attempts = ev.Attempt
		rec.Error = ev.Error
		if rec.Symbol == "" {
			rec.Symbol = ev.Symbol
		}
	default:
		return nil
	}

	rec.CreatedAt = event.Timestamp()
	if err := r.journal.SaveHit(ctx, rec); err != nil {
		return fmt.Errorf("journal hit %s: %w", rec.Symbol, err)
	}

	r.logger.Debug("Hit journaled",
		zap.String("symbol", rec.Symbol),
		zap.String("outcome", rec.Outcome))
	return nil
}

func hitRecord(eventID string, res detector.Result, outcome string) *models.HitRecord {
	return &models.HitRecord{
		EventID:       eventID,
		Symbol:        res.Symbol,
		Kind:          string(res.Kind),
		Method:        string(res.Method),
		Threshold:     res.Threshold,
		EvidencePrice: res.Evidence.Price,
		EvidenceAt:    res.Evidence.At,
		DetectedAt:    res.DetectedAt,
		Outcome:       outcome,
	}
}
