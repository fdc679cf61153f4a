package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/beacon/internal/config"
	"github.com/crimson-sun/beacon/internal/logging"
	"github.com/crimson-sun/beacon/internal/model"
	"github.com/crimson-sun/beacon/internal/pipeline"
	"github.com/crimson-sun/beacon/internal/report"
	"github.com/crimson-sun/beacon/internal/storage"

	// Register storage drivers.
	_ "github.com/crimson-sun/beacon/internal/storage/memory"
	_ "github.com/crimson-sun/beacon/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Init(true, cfg.Log.Level)

	// Set up graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nreceived %v, shutting down...\n", sig)
		cancel()
	}()

	store, err := storage.Open(ctx, storage.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	p := pipeline.New(store)
	out := report.Stdout(false)

	slog.Info("beacon starting", "driver", cfg.Storage.Driver, "batch_size", cfg.Ingest.BatchSize)
	if err := ingest(ctx, cfg, p, out); err != nil && err != context.Canceled {
		log.Fatalf("ingest error: %v", err)
	}
}

// ingest reads NDJSON events from stdin and dispatches them to the pipeline
// in batches, one batch per project, up to cfg.Ingest.Workers at a time.
func ingest(ctx context.Context, cfg config.Config, p *pipeline.Pipeline, out *report.Writer) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	batch := make([]*model.Event, 0, cfg.Ingest.BatchSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev model.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			slog.Warn("skipping malformed event", "err", err)
			continue
		}
		batch = append(batch, &ev)
		if len(batch) >= cfg.Ingest.BatchSize {
			if err := dispatch(ctx, cfg, p, out, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if len(batch) > 0 {
		return dispatch(ctx, cfg, p, out, batch)
	}
	return nil
}

// dispatch splits a batch by project and processes the per-project batches
// concurrently. Outcomes are written per batch once processing finishes.
func dispatch(ctx context.Context, cfg config.Config, p *pipeline.Pipeline, out *report.Writer, batch []*model.Event) error {
	byProject := make(map[string][]*model.Event)
	var order []string
	for _, ev := range batch {
		if _, ok := byProject[ev.ProjectID]; !ok {
			order = append(order, ev.ProjectID)
		}
		byProject[ev.ProjectID] = append(byProject[ev.ProjectID], ev)
	}

	results := make([][]*pipeline.Context, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Ingest.Workers)
	for i, projectID := range order {
		i, projectID := i, projectID
		g.Go(func() error {
			contexts, err := p.Run(gctx, byProject[projectID])
			if err != nil {
				return fmt.Errorf("project %s: %w", projectID, err)
			}
			results[i] = contexts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, contexts := range results {
		if err := out.WriteBatch(contexts); err != nil {
			return err
		}
	}
	return nil
}
