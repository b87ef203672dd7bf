package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"codeberg.org/graphmirror/graphmirror/pkg/graph"
	"codeberg.org/graphmirror/graphmirror/pkg/store"
)

// Syncer drives incremental mirroring of users, groups and teams from the
// Graph delta feeds into the store.
type Syncer struct {
	client      *graph.Client
	store       *store.Store
	logger      *zap.Logger
	workers     int
	lookupBatch int
	last        *xsync.Map[string, Result]
}

type Option func(*Syncer)

func WithWorkers(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLookupBatch caps how many users share one $batch enrichment call.
// Graph rejects batches above 20 requests.
func WithLookupBatch(n int) Option {
	return func(s *Syncer) {
		if n > 0 && n <= 20 {
			s.lookupBatch = n
		}
	}
}

func NewSyncer(client *graph.Client, st *store.Store, logger *zap.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		client:      client,
		store:       st,
		logger:      logger,
		workers:     5,
		lookupBatch: 20,
		last:        xsync.NewMap[string, Result](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncResource runs one resource's sync by name. The result is recorded in
// the last-run registry even when the run fails with partial counters.
func (s *Syncer) SyncResource(ctx context.Context, resource string) (Result, error) {
	var result Result
	var err error
	switch resource {
	case ResourceUsers:
		result, err = s.SyncUsers(ctx)
	case ResourceGroups:
		result, err = s.SyncGroups(ctx)
	case ResourceTeams:
		result, err = s.SyncTeams(ctx)
	default:
		return Result{}, fmt.Errorf("unknown sync resource %q", resource)
	}
	s.last.Store(resource, result)
	return result, err
}

// LastResults reports the most recent in-process run summary per resource.
func (s *Syncer) LastResults() map[string]Result {
	results := make(map[string]Result, s.last.Size())
	s.last.Range(func(resource string, r Result) bool {
		results[resource] = r
		return true
	})
	return results
}

// Run syncs the given resources in order. One resource failing does not stop
// the others; the first error is returned after all have run.
func (s *Syncer) Run(ctx context.Context, resources []string) error {
	var firstErr error
	for _, resource := range resources {
		start := time.Now()
		result, err := s.SyncResource(ctx, resource)
		if err != nil {
			msg := "sync run failed"
			if graph.IsAuthError(err) {
				msg = "sync run failed: graph credentials rejected"
			}
			s.logger.Error(msg,
				zap.String("resource", resource),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		s.logger.Info("sync run complete",
			zap.String("resource", resource),
			zap.Int("added", result.Added),
			zap.Int("updated", result.Updated),
			zap.Int("deleted", result.Deleted),
			zap.Duration("elapsed", time.Since(start)))
	}
	return firstErr
}

// Start runs the sync on the given interval until the context is cancelled.
func (s *Syncer) Start(ctx context.Context, resources []string, interval time.Duration, runOnStart bool) {
	if runOnStart {
		if err := s.Run(ctx, resources); err != nil {
			s.logger.Error("initial sync failed", zap.Error(err))
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Run(ctx, resources); err != nil {
				s.logger.Error("scheduled sync failed", zap.Error(err))
			}
		}
	}
}

// finish writes the sync log for the run and, on success, persists the new
// delta link. A run that never reached a delta marker keeps the old link so
// the next run resumes from the previous checkpoint.
func (s *Syncer) finish(ctx context.Context, resource, syncedAt string, result Result, deltaLink string, runErr error) error {
	status := store.SyncStatusSuccess
	errMsg := ""
	if runErr != nil {
		status = store.SyncStatusFailed
		errMsg = runErr.Error()
	}

	if runErr == nil && deltaLink != "" {
		if err := s.store.SaveDeltaLink(ctx, resource, deltaLink, syncedAt); err != nil {
			status = store.SyncStatusFailed
			errMsg = err.Error()
			runErr = err
		}
	}

	logErr := s.store.AppendSyncLog(ctx, &store.SyncLog{
		Resource:     resource,
		SyncedAt:     syncedAt,
		Added:        result.Added,
		Updated:      result.Updated,
		Deleted:      result.Deleted,
		Status:       status,
		ErrorMessage: errMsg,
	})
	if logErr != nil {
		s.logger.Error("failed to write sync log",
			zap.String("resource", resource),
			zap.Error(logErr))
	}

	return runErr
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
