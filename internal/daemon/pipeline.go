// Package daemon runs hookline as a long-lived process: an inbox
// watcher feeding the ingestion pipeline plus scheduled log
// maintenance.
package daemon

import (
	"context"

	"github.com/delaney/hookline/internal/engine"
	"github.com/delaney/hookline/internal/event"
	"github.com/delaney/hookline/internal/index"
	"github.com/delaney/hookline/internal/logging"
	"github.com/delaney/hookline/internal/store"
)

// Pipeline is the single ingestion path every producer goes through:
// validate, enrich, persist, index, dispatch. Nothing reaches hooks or
// queries without first landing in the event log.
type Pipeline struct {
	store      *store.Store
	index      *index.Index // nil when indexing is disabled
	dispatcher *engine.Dispatcher
	agentID    string
	logger     *logging.Logger
}

// NewPipeline wires the ingestion path. idx may be nil.
func NewPipeline(s *store.Store, idx *index.Index, d *engine.Dispatcher, agentID string) *Pipeline {
	return &Pipeline{
		store:      s,
		index:      idx,
		dispatcher: d,
		agentID:    agentID,
		logger:     logging.Component("pipeline"),
	}
}

// Ingest runs one event through the pipeline. The event is rejected
// before persistence when invalid; once appended it is immutable, so
// routing and index failures are logged but do not undo the append.
// Dispatch errors (blocking hook failures) are returned to the caller.
func (p *Pipeline) Ingest(ctx context.Context, e *event.Event) (store.Offset, error) {
	if e.AgentID == "" {
		e.AgentID = p.agentID
	}
	event.Enrich(e)
	if err := event.Validate(e); err != nil {
		return store.Offset{}, err
	}

	off, err := p.store.Append(e)
	if err != nil {
		return store.Offset{}, err
	}

	if err := p.store.Route(e); err != nil {
		p.logger.ErrorCtx("routing event to views failed", map[string]any{
			"event_id": e.EventID, "error": err.Error(),
		})
	}
	if p.index != nil {
		if err := p.index.Insert(e, off); err != nil {
			p.logger.ErrorCtx("indexing event failed", map[string]any{
				"event_id": e.EventID, "error": err.Error(),
			})
		}
	}

	if p.dispatcher == nil {
		return off, nil
	}
	_, err = p.dispatcher.Dispatch(ctx, e)
	return off, err
}
