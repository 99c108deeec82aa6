package outreach

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/outreach-matcher/internal/matching"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// ErrPanicked marks a side effect that panicked instead of returning.
var ErrPanicked = errors.New("panicked")

// Delivery is what happened to a single emitted result.
type Delivery struct {
	TrialID     string
	Document    string
	DocumentErr error
	Outcome     Outcome
	RecordErr   error
}

// Dispatcher runs the per-result side effects of an emitted page.
type Dispatcher struct {
	renderer    Renderer
	recorder    Recorder
	concurrency int
	logger      *zap.Logger
}

// NewDispatcher creates a dispatcher. Either collaborator may be nil.
func NewDispatcher(renderer Renderer, recorder Recorder, concurrency int, logger *zap.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		renderer:    renderer,
		recorder:    recorder,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Deliver renders and records every result of the page. Failures, panics included, are
// isolated per result and reported in the returned slice, which keeps page order.
func (d *Dispatcher) Deliver(ctx context.Context, campaign Campaign, page []*matching.Result) []Delivery {
	deliveries := make([]Delivery, len(page))
	if len(page) == 0 {
		return deliveries
	}

	recorder := d.pageRecorder(ctx)

	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for i, result := range page {
		g.Go(func() error {
			deliveries[i] = d.deliver(ctx, campaign, result, recorder)
			return nil
		})
	}
	_ = g.Wait()

	return deliveries
}

// pageRecorder shares one CRM snapshot across the page when the recorder supports it.
func (d *Dispatcher) pageRecorder(ctx context.Context) Recorder {
	pr, ok := d.recorder.(PageRecorder)
	if !ok {
		return d.recorder
	}

	var recorder Recorder
	err := guard(d.logger, "crm snapshot", func() error {
		var err error
		recorder, err = pr.ForPage(ctx)
		return err
	})
	if err != nil || recorder == nil {
		d.logger.Warn("loading crm snapshot failed, recording per result", zap.Error(err))
		return d.recorder
	}
	return recorder
}

func (d *Dispatcher) deliver(ctx context.Context, campaign Campaign, result *matching.Result, recorder Recorder) Delivery {
	delivery := Delivery{Outcome: OutcomeDisabled}
	log := d.logger

	err := guard(log, "trial id", func() error {
		delivery.TrialID = result.TrialID()
		return nil
	})
	if err != nil {
		delivery.DocumentErr, delivery.RecordErr, delivery.Outcome = err, err, ""
		return delivery
	}
	log = log.With(zap.String("nct_id", delivery.TrialID))

	if d.renderer != nil {
		delivery.DocumentErr = guard(log, "render", func() error {
			var err error
			delivery.Document, err = d.renderer.Render(ctx, result, campaign)
			return err
		})
		if delivery.DocumentErr != nil {
			delivery.Document = ""
			log.Warn("rendering outreach document failed", zap.Error(delivery.DocumentErr))
		} else {
			log.Debug("outreach document written", zap.String("path", delivery.Document))
		}
	}

	if recorder != nil {
		delivery.RecordErr = guard(log, "record", func() error {
			var err error
			delivery.Outcome, err = recorder.Record(ctx, result, campaign.Name)
			return err
		})
		if delivery.RecordErr != nil {
			delivery.Outcome = ""
			log.Warn("recording study in crm failed", zap.Error(delivery.RecordErr))
		} else {
			log.Debug("crm record processed", zap.String("outcome", string(delivery.Outcome)))
		}
	}

	return delivery
}

// guard runs fn and turns a panic into an ErrPanicked error.
func guard(log *zap.Logger, stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("outreach side effect panicked", zap.String("stage", stage), zap.Any("panic", r))
			err = fmt.Errorf("%s %w: %v", stage, ErrPanicked, r)
		}
	}()
	return fn()
}
