package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nerrad567/dcsense-core/internal/infrastructure/metrics"
)

// Transport labels for submission metrics.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// PromotionNotifier is told about every promoted batch after it is stored.
type PromotionNotifier interface {
	NotifyPromotion(ctx context.Context, result Result, readings []Reading)
}

// Pipeline validates reading batches, advances the controller counter and
// routes each batch to the research tier and, when promoted, production.
type Pipeline struct {
	counters   CounterStore
	research   Sink
	production Sink
	locks      *KeyedMutex
	threshold  int
	notifier   PromotionNotifier
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithThreshold sets the number of submissions between promotions.
// Values below 1 are ignored.
func WithThreshold(n int) Option {
	return func(p *Pipeline) {
		if n >= 1 {
			p.threshold = n
		}
	}
}

// WithPromotionNotifier registers n to be told about promotions.
func WithPromotionNotifier(n PromotionNotifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// NewPipeline creates a Pipeline over the given counter store and tiers.
func NewPipeline(counters CounterStore, research, production Sink, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		counters:   counters,
		research:   research,
		production: production,
		locks:      NewKeyedMutex(),
		threshold:  DefaultThreshold,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Threshold returns the configured promotion threshold.
func (p *Pipeline) Threshold() int {
	return p.threshold
}

// Submit ingests one batch received over HTTP.
func (p *Pipeline) Submit(ctx context.Context, batch []RawReading) (Result, error) {
	return p.submit(ctx, TransportHTTP, batch)
}

func (p *Pipeline) submit(ctx context.Context, transport string, batch []RawReading) (Result, error) {
	controllerID, readings, err := validate(batch)
	if err != nil {
		metrics.RejectedSubmissionsTotal.WithLabelValues(rejectReason(err)).Inc()
		return Result{}, err
	}

	unlock := p.locks.Lock(controllerID)
	defer unlock()

	counter, promoted, err := p.counters.Step(ctx, controllerID, p.threshold)
	if err != nil {
		return Result{}, fmt.Errorf("advancing counter: %w", err)
	}

	if err := p.research.Write(ctx, readings); err != nil {
		return Result{}, fmt.Errorf("writing research readings: %w", err)
	}
	metrics.ReadingsWrittenTotal.WithLabelValues(metrics.TierResearch).Add(float64(len(readings)))

	if promoted {
		if err := p.production.Write(ctx, readings); err != nil {
			return Result{}, fmt.Errorf("writing production readings: %w", err)
		}
		metrics.ReadingsWrittenTotal.WithLabelValues(metrics.TierProduction).Add(float64(len(readings)))
		metrics.PromotionsTotal.Inc()
	}
	metrics.SubmissionsTotal.WithLabelValues(transport).Inc()

	result := Result{
		ControllerID: controllerID,
		Readings:     len(readings),
		Counter:      counter,
		Promoted:     promoted,
	}

	if promoted {
		p.logger.Info("batch promoted to production",
			"controller", controllerID,
			"readings", len(readings),
			"transport", transport,
		)
		if p.notifier != nil {
			p.notifier.NotifyPromotion(ctx, result, readings)
		}
	}
	return result, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyBatch):
		return "empty"
	case errors.Is(err, ErrMixedControllers):
		return "mixed_controllers"
	case errors.Is(err, ErrInvalidTime):
		return "invalid_time"
	default:
		return "other"
	}
}
