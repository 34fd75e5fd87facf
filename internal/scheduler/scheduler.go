// Package scheduler runs periodic maintenance jobs for the mill service.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"almazara/internal/blob"
	"almazara/pkg/domain"
)

// SnapshotSource returns the current mill snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// Scheduler copies the mill snapshot to the blob store on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	source   SnapshotSource
	store    blob.Store
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	lastVersion uint64
	backedUp    bool
}

// NewScheduler creates a scheduler. An empty schedule disables the backup job.
func NewScheduler(schedule string, source SnapshotSource, store blob.Store, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(),
		schedule: schedule,
		source:   source,
		store:    store,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the backup job and starts the cron runner.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("snapshot backup disabled")
		return nil
	}
	s.logger.Info("starting scheduler", zap.String("schedule", s.schedule))
	if _, err := s.cron.AddFunc(s.schedule, s.backupSnapshot); err != nil {
		return fmt.Errorf("schedule snapshot backup: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop stops the cron runner and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) backupSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	key, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("snapshot backup failed", zap.Error(err))
		return
	}
	if key == "" {
		s.logger.Debug("snapshot unchanged since last backup")
		return
	}
	s.logger.Info("snapshot backup stored", zap.String("key", key))
}

// RunOnce writes the current snapshot as JSON under snapshots/. It returns
// the stored key, or "" when the snapshot version was already backed up.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}
	if s.backedUp && snap.Version == s.lastVersion {
		return "", nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	at := s.now()
	key := fmt.Sprintf("snapshots/v%06d-%s.json", snap.Version, at.Format("20060102T150405Z"))
	_, err = s.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"snapshot_version": fmt.Sprintf("%d", snap.Version),
			"taken_at":         at.Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("store snapshot: %w", err)
	}
	s.lastVersion = snap.Version
	s.backedUp = true
	return key, nil
}
