package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/delaney/hookline/internal/audit"
	"github.com/delaney/hookline/internal/event"
	"github.com/delaney/hookline/internal/hooks"
	"github.com/delaney/hookline/internal/logging"
)

// Dispatcher runs every hook matching an event, sequentially and to
// individual resolution. Hooks often mutate shared repository state,
// so there is deliberately no parallelism and no mid-cycle abort.
type Dispatcher struct {
	manifestPath string
	hooksDir     string
	executor     *Executor
	logger       *logging.Logger

	// One dispatch cycle at a time; the manifest is re-read only at
	// cycle boundaries.
	mu sync.Mutex
}

// DispatchResult summarizes one dispatch cycle.
type DispatchResult struct {
	EventID string
	Results []ExecutionResult
}

// NewDispatcher creates a Dispatcher reading the manifest at
// manifestPath with scripts confined to hooksDir.
func NewDispatcher(manifestPath, hooksDir string, executor *Executor) *Dispatcher {
	return &Dispatcher{
		manifestPath: manifestPath,
		hooksDir:     hooksDir,
		executor:     executor,
		logger:       logging.Component("dispatcher"),
	}
}

// Dispatch loads the manifest, matches the event, and executes every
// matched hook in order. The returned error is non-nil when the caller
// must block: a ConfigError (hooks disabled), a SecurityError, an
// audit write failure, or any fail_mode=stop hook that did not
// succeed. fail_mode=continue failures are recorded and swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, e *event.Event) (*DispatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg, err := hooks.Load(d.manifestPath, d.hooksDir)
	if err != nil {
		d.logger.ErrorCtx("hook configuration invalid, all hooks disabled", map[string]any{
			"manifest": d.manifestPath,
			"error":    err.Error(),
		})
		return nil, err
	}

	matched := hooks.Match(cfg, e)
	result := &DispatchResult{EventID: e.EventID}
	if len(matched) == 0 {
		return result, nil
	}

	d.logger.InfoCtx("dispatching event", map[string]any{
		"event_id":   e.EventID,
		"event_type": e.EventType,
		"hooks":      len(matched),
	})

	var blocking []error
	for _, h := range matched {
		res, err := d.executor.Execute(ctx, h, e)
		if res != nil {
			result.Results = append(result.Results, *res)
		}
		if err != nil {
			// Security violations and audit failures block no matter
			// what fail_mode says; remaining hooks still run.
			blocking = append(blocking, err)
			continue
		}
		if res.Status != audit.StatusSuccess && h.FailMode == hooks.FailStop {
			blocking = append(blocking, &ExecutionError{
				Hook:     h.Name,
				EventID:  e.EventID,
				Status:   res.Status,
				ExitCode: res.ExitCode,
				Reason:   res.Reason,
			})
		}
	}

	return result, errors.Join(blocking...)
}
