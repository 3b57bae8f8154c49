package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/zfswitness/internal/server/storage"
	"github.com/iudanet/zfswitness/pkg/api"
)

// Coordinator is the slice of the reconciliation engine the scheduler drives.
type Coordinator interface {
	GroupInstructions(ctx context.Context, groupID string, includeDiagnostics bool) ([]api.DatasetSyncInstruction, []string, error)
}

// ConflictDetector is the slice of the conflict service the scheduler drives.
type ConflictDetector interface {
	DetectAllConflicts(ctx context.Context, groupID string) ([]api.Conflict, error)
	MarkConflictsInStates(ctx context.Context, conflicts []api.Conflict) error
}

// Config holds scheduler settings
type Config struct {
	Interval          time.Duration // глобальный тик
	MaxParallelGroups int           // предел одновременных оценок групп
}

// Scheduler periodically re-evaluates every enabled sync group: detects
// conflicts, records them in sync states, and refreshes instructions.
// Группа со своим sync_interval_seconds оценивается не чаще него.
type Scheduler struct {
	logger      *slog.Logger
	clock       clockwork.Clock
	groups      storage.GroupStorage
	coordinator Coordinator
	conflicts   ConflictDetector

	interval    time.Duration
	maxParallel int

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// New creates a scheduler
func New(
	logger *slog.Logger,
	clock clockwork.Clock,
	groups storage.GroupStorage,
	coordinator Coordinator,
	conflicts ConflictDetector,
	cfg Config,
) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	maxParallel := cfg.MaxParallelGroups
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Scheduler{
		logger:      logger.With("component", "scheduler"),
		clock:       clock,
		groups:      groups,
		coordinator: coordinator,
		conflicts:   conflicts,
		interval:    interval,
		maxParallel: maxParallel,
		lastRun:     make(map[string]time.Time),
	}
}

// Run блокируется до отмены контекста. Первый проход выполняется сразу,
// дальше по тикам.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.interval.String(),
		"max_parallel_groups", s.maxParallel)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.Chan():
			s.RunOnce(ctx)
		}
	}
}

// RunOnce evaluates all enabled groups that are due. Ошибки отдельных групп
// логируются и не прерывают проход.
func (s *Scheduler) RunOnce(ctx context.Context) {
	groups, err := s.groups.ListEnabledGroups(ctx)
	if err != nil {
		s.logger.Error("failed to list enabled groups", "error", err)
		return
	}

	now := s.clock.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)

	for _, group := range groups {
		if !s.due(group.ID, group.SyncIntervalSeconds, now) {
			continue
		}
		g.Go(func() error {
			s.evaluateGroup(gctx, group.ID, group.Name)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("evaluation pass failed", "error", err)
	}
}

// due проверяет, пора ли оценивать группу. Группа без собственного интервала
// оценивается каждый тик.
func (s *Scheduler) due(groupID string, intervalSeconds int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if intervalSeconds > 0 {
		last, ok := s.lastRun[groupID]
		if ok && now.Sub(last) < time.Duration(intervalSeconds)*time.Second {
			return false
		}
	}
	s.lastRun[groupID] = now
	return true
}

func (s *Scheduler) evaluateGroup(ctx context.Context, groupID, name string) {
	conflicts, err := s.conflicts.DetectAllConflicts(ctx, groupID)
	if err != nil {
		s.logger.Error("conflict detection failed",
			"group_id", groupID, "group", name, "error", err)
		return
	}

	if len(conflicts) > 0 {
		for _, c := range conflicts {
			s.logger.Warn("[CONFLICT] "+c.Type,
				"group_id", groupID,
				"dataset", c.Dataset,
				"snapshot", c.SnapshotName,
				"severity", c.Severity)
		}
		if err := s.conflicts.MarkConflictsInStates(ctx, conflicts); err != nil {
			s.logger.Error("failed to mark conflicts",
				"group_id", groupID, "error", err)
		}
	}

	instructions, _, err := s.coordinator.GroupInstructions(ctx, groupID, false)
	if err != nil {
		s.logger.Error("group evaluation failed",
			"group_id", groupID, "group", name, "error", err)
		return
	}

	s.logger.Info("group pass complete",
		"group_id", groupID,
		"group", name,
		"conflicts", len(conflicts),
		"instructions", len(instructions))
}
