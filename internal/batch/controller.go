package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karmi/pn-transcriptions/internal/common"
	"github.com/karmi/pn-transcriptions/internal/entity"
	"github.com/karmi/pn-transcriptions/internal/ledger"
	"github.com/karmi/pn-transcriptions/internal/nameutil"
	"github.com/karmi/pn-transcriptions/internal/source"
)

// Controller computes the work set and drives one batch run end to end.
type Controller struct {
	source     source.Enumerator
	ledger     ledger.Ledger
	pool       *Pool
	logger     *slog.Logger
	onDispatch func(pending, skipped int)
}

type ControllerOption func(*Controller)

// WithOnDispatch installs a callback invoked once per run, as soon as the
// work set is known and before anything is submitted. pending is zero when
// the window selected nothing or everything was already completed.
func WithOnDispatch(f func(pending, skipped int)) ControllerOption {
	return func(c *Controller) {
		c.onDispatch = f
	}
}

func NewController(src source.Enumerator, led ledger.Ledger, pool *Pool, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{source: src, ledger: led, pool: pool, logger: logger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run enumerates the input, applies the offset/limit window, validates the
// selection, filters what the ledger already completed, and drains the rest
// through the worker pool. A returned error is fatal and means nothing was
// submitted.
func (c *Controller) Run(ctx context.Context, window entity.RunWindow) (entity.RunSummary, error) {
	start := time.Now()

	items, err := c.source.Enumerate(ctx)
	if err != nil {
		return entity.RunSummary{}, err
	}

	lo, hi := window.Bounds(len(items))
	selected := items[lo:hi]
	c.logger.Info("batch.window",
		"enumerated", len(items),
		"offset", lo,
		"selected", len(selected),
	)

	summary := entity.RunSummary{Total: len(selected)}
	if len(selected) == 0 {
		summary.Elapsed = time.Since(start)
		c.logger.Info("batch.empty", "reason", "window selected no items")
		c.notifyDispatch(0, 0)
		return summary, nil
	}

	if err := validateUnique(selected); err != nil {
		return entity.RunSummary{}, err
	}

	if _, err := c.ledger.Load(ctx); err != nil {
		return entity.RunSummary{}, err
	}

	work := make([]entity.WorkItem, 0, len(selected))
	for _, item := range selected {
		if c.ledger.IsComplete(item.Identifier) {
			summary.Skipped++
			c.logger.Info("item skipped", "identifier", item.Identifier)
			continue
		}
		work = append(work, item)
	}

	if len(work) == 0 {
		summary.Elapsed = time.Since(start)
		c.logger.Info("batch.empty", "reason", "every selected item already completed")
		c.notifyDispatch(0, summary.Skipped)
		return summary, nil
	}

	c.logger.Info("batch.start", "items", len(work), "skipped", summary.Skipped)
	c.notifyDispatch(len(work), summary.Skipped)
	summary.Completed, summary.Failed = c.pool.Run(ctx, work)
	summary.Elapsed = time.Since(start)

	c.logger.Info("batch.summary",
		"total", summary.Total,
		"skipped", summary.Skipped,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"elapsed_ms", summary.Elapsed.Milliseconds(),
	)
	return summary, nil
}

func (c *Controller) notifyDispatch(pending, skipped int) {
	if c.onDispatch != nil {
		c.onDispatch(pending, skipped)
	}
}

// validateUnique rejects selections where two identifiers collapse onto the
// same ledger slot. Runs abort here, before anything is submitted, so two
// workers can never race on one slot.
func validateUnique(items []entity.WorkItem) error {
	seen := make(map[string]string, len(items))
	var dups []string
	for _, item := range items {
		key, err := nameutil.Key(item.Identifier)
		if err != nil {
			return common.ConfigErrorf("identifier %q is unusable: %v", item.Identifier, err)
		}
		if prev, ok := seen[key]; ok {
			dups = append(dups, fmt.Sprintf("%q collides with %q", item.Identifier, prev))
			continue
		}
		seen[key] = item.Identifier
	}
	if len(dups) > 0 {
		return common.ConfigErrorf("duplicate identifiers in run window: %s", strings.Join(dups, "; "))
	}
	return nil
}
