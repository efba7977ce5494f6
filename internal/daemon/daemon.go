package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/delaney/hookline/internal/event"
	"github.com/delaney/hookline/internal/logging"
	"github.com/delaney/hookline/internal/store"
)

// Daemon watches an inbox directory for event files and feeds them
// through the pipeline. Producers write one JSON event per *.json file
// and the write is atomic from the daemon's perspective once the file
// is renamed into place.
type Daemon struct {
	inboxDir string
	pipeline *Pipeline
	store    *store.Store
	logger   *logging.Logger
}

// New creates a Daemon ingesting from inboxDir.
func New(inboxDir string, p *Pipeline, s *store.Store) *Daemon {
	return &Daemon{
		inboxDir: inboxDir,
		pipeline: p,
		store:    s,
		logger:   logging.Component("daemon"),
	}
}

// Run blocks until ctx is cancelled, processing inbox files as they
// appear and compressing expired log segments every midnight UTC.
// Files already present at startup are drained first.
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(d.inboxDir, 0o755); err != nil {
		return fmt.Errorf("creating inbox dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(d.inboxDir); err != nil {
		return fmt.Errorf("watching inbox dir: %w", err)
	}

	sched := cron.New(cron.WithLocation(time.UTC))
	if _, err := sched.AddFunc("0 0 * * *", d.maintain); err != nil {
		return fmt.Errorf("scheduling maintenance: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	d.drain(ctx)
	d.logger.InfoCtx("daemon started", map[string]any{"inbox": d.inboxDir})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if strings.HasSuffix(ev.Name, ".json") {
				d.processFile(ctx, ev.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Err(err).Msg("inbox watcher error")
		}
	}
}

// drain ingests files that arrived before the watcher was up.
func (d *Daemon) drain(ctx context.Context) {
	entries, err := os.ReadDir(d.inboxDir)
	if err != nil {
		d.logger.Err(err).Msg("reading inbox")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		d.processFile(ctx, filepath.Join(d.inboxDir, entry.Name()))
	}
}

// processFile ingests one inbox file. Accepted files are removed;
// rejected ones are parked under rejected/ so a malformed producer
// cannot wedge the inbox.
func (d *Daemon) processFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Err(err).Msg("reading inbox file")
		}
		return
	}

	e, err := event.Parse(data)
	if err == nil {
		_, err = d.pipeline.Ingest(ctx, &e)
	}
	if err != nil {
		var schemaErr *event.SchemaError
		var storeErr *store.StoreError
		if errors.As(err, &schemaErr) {
			d.logger.ErrorCtx("rejecting inbox file", map[string]any{
				"file": filepath.Base(path), "error": err.Error(),
			})
			d.reject(path)
			return
		}
		if errors.As(err, &storeErr) {
			// Not persisted; the file stays in the inbox for a retry.
			d.logger.Err(err).Msg("persisting inbox event")
			return
		}
		// Blocking hook failure; the event is already in the log.
		d.logger.ErrorCtx("hooks blocked for inbox event", map[string]any{
			"file": filepath.Base(path), "error": err.Error(),
		})
	}

	if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
		d.logger.Err(removeErr).Msg("removing inbox file")
	}
}

func (d *Daemon) reject(path string) {
	rejectedDir := filepath.Join(d.inboxDir, "rejected")
	if err := os.MkdirAll(rejectedDir, 0o755); err != nil {
		d.logger.Err(err).Msg("creating rejected dir")
		return
	}
	if err := os.Rename(path, filepath.Join(rejectedDir, filepath.Base(path))); err != nil {
		d.logger.Err(err).Msg("parking rejected file")
	}
}

// maintain compresses expired event log segments.
func (d *Daemon) maintain() {
	if err := d.store.CompressExpired(); err != nil {
		d.logger.Err(err).Msg("compressing expired segments")
		return
	}
	d.logger.Info("log maintenance complete")
}
