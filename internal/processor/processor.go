// Package processor drives a meal from uploading to a terminal status.
//
// Every status change goes through store.CompareAndSetStatus, so the
// processor is safe to run on many instances that receive the same work
// item more than once. A record that entered processing is always driven to
// a terminal status, or left in processing for the next delivery to pick up.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/analysis"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/logging"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/metrics"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/queue"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store"
)

// Outcome says how a work item ended.
type Outcome string

// Possible values for Outcome
const (
	// OutcomeMalformed: the work item names no file.
	OutcomeMalformed Outcome = "malformed"
	// OutcomeNotFound: no record has the item's file key.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeAlreadyHandled: the record was terminal already.
	OutcomeAlreadyHandled Outcome = "already_handled"
	// OutcomeRaceLost: another worker moved the record first.
	OutcomeRaceLost  Outcome = "race_lost"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeRetry: a store error; the item must be redelivered.
	OutcomeRetry Outcome = "retry"
)

// ErrPoison marks a work item that no redelivery can fix.
var ErrPoison = errors.New("poison work item")

// IsRetriable reports whether the item that produced err should be
// redelivered.
func IsRetriable(err error) bool {
	return err != nil && !errors.Is(err, ErrPoison)
}

// claimable is the expected set of the claim. processing is included so a
// delivery can resume an attempt whose worker died mid-analysis.
var claimable = []models.Status{models.StatusUploading, models.StatusProcessing}

// Processor resolves work items against the store and the analyzer.
type Processor struct {
	Store    store.Store
	Analyzer analysis.Analyzer
	// Timeout bounds one analysis call; zero means no bound.
	Timeout time.Duration
	Log     logrus.FieldLogger
}

// Process runs one work item. A nil error means the item can be
// acknowledged; otherwise IsRetriable decides.
func (p *Processor) Process(ctx context.Context, item queue.WorkItem) (out Outcome, err error) {
	log := logging.FromContext(ctx, p.Log).WithField("file_key", item.FileKey)
	defer func() {
		metrics.MealsProcessed.WithLabelValues(string(out)).Inc()
		entry := log.WithField("outcome", out)
		if err != nil {
			entry.WithError(err).Warn("work item not completed")
			return
		}
		entry.Info("work item done")
	}()

	if strings.TrimSpace(item.FileKey) == "" {
		return OutcomeMalformed, fmt.Errorf("%w: empty fileKey", ErrPoison)
	}

	m, err := p.Store.FindByInputKey(ctx, item.FileKey)
	if errors.Is(err, store.ErrNotFound) {
		return OutcomeNotFound, nil
	}
	if err != nil {
		return OutcomeRetry, fmt.Errorf("find meal: %w", err)
	}
	log = log.WithField("meal_id", m.ID)

	if m.Status.Terminal() {
		return OutcomeAlreadyHandled, nil
	}

	claimed, err := p.Store.CompareAndSetStatus(ctx, m.ID, claimable, models.StatusProcessing, nil)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("claim meal %s: %w", m.ID, err)
	}
	if !claimed {
		return p.afterLostClaim(ctx, item.FileKey)
	}

	res, aerr := p.analyze(ctx, m)
	if aerr != nil && ctx.Err() != nil {
		// Our own deadline, not the analyzer's fault: stay in processing
		// and let the redelivery resume.
		return OutcomeRetry, fmt.Errorf("analyze meal %s: %w", m.ID, ctx.Err())
	}
	if aerr == nil {
		aerr = models.ValidateOutcome(res.Name, res.Icon, res.Foods)
	}

	if aerr == nil {
		ok, err := p.Store.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusProcessing}, models.StatusSuccess,
			&store.Outcome{Name: res.Name, Icon: res.Icon, Foods: res.Foods})
		if err != nil {
			return OutcomeRetry, fmt.Errorf("commit success for meal %s: %w", m.ID, err)
		}
		if !ok {
			return OutcomeRaceLost, nil
		}
		return OutcomeSucceeded, nil
	}

	log.WithError(aerr).Warn("analysis failed")
	ok, err := p.Store.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusProcessing}, models.StatusFailed, nil)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("record failure for meal %s: %w", m.ID, err)
	}
	if !ok {
		return OutcomeRaceLost, nil
	}
	return OutcomeFailed, nil
}

// afterLostClaim re-reads the record once the claim precondition failed.
func (p *Processor) afterLostClaim(ctx context.Context, key string) (Outcome, error) {
	m, err := p.Store.FindByInputKey(ctx, key)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("re-read meal: %w", err)
	}
	if m.Status.Terminal() {
		return OutcomeAlreadyHandled, nil
	}
	return OutcomeRaceLost, nil
}

// analyze calls the analyzer under the configured timeout. A panic counts
// as an analysis failure.
func (p *Processor) analyze(ctx context.Context, m models.MealRecord) (res analysis.Result, err error) {
	actx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analyzer panic: %v", r)
		}
		metrics.AnalysisDuration.WithLabelValues(string(m.InputType)).Observe(time.Since(start).Seconds())
	}()
	return p.Analyzer.Analyze(actx, analysis.Input{FileKey: m.InputFileKey, InputType: m.InputType})
}

// Handle adapts Process to queue.Handler.
func (p *Processor) Handle(ctx context.Context, msgID string, item queue.WorkItem) error {
	_, err := p.Process(logging.WithRequestID(ctx, msgID), item)
	return err
}
