package buffer

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

const (
	defaultSweepGrace = 2 * time.Minute
	defaultSweepLimit = 100
	sweepTimeout      = 2 * time.Minute
)

// Sweeper periodically processes open buffers whose deadline passed long ago, covering lost
// queue deliveries. It never touches claimed buffers.
type Sweeper struct {
	store     Store
	processor Processor
	grace     time.Duration
	limit     int
	logger    *logging.Logger
	now       func() time.Time

	mu   sync.Mutex
	cron *rcron.Cron
}

// NewSweeper builds a sweeper. A non-positive grace uses the default.
func NewSweeper(store Store, processor Processor, grace time.Duration, logger *logging.Logger) *Sweeper {
	if store == nil {
		panic("buffer: store cannot be nil")
	}
	if processor == nil {
		panic("buffer: processor cannot be nil")
	}
	if grace <= 0 {
		grace = defaultSweepGrace
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		store:     store,
		processor: processor,
		grace:     grace,
		limit:     defaultSweepLimit,
		logger:    logger,
		now:       time.Now,
	}
}

// Start registers the sweep on a cron schedule such as "@every 30s".
func (s *Sweeper) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("buffer: sweeper already started")
	}
	c := rcron.New()
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.Error("buffer sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("buffer: invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("buffer sweeper started", "schedule", schedule, "grace", s.grace)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// SweepOnce processes every overdue conversation once and returns how many were invoked.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.grace)
	due, err := s.store.ListDue(ctx, cutoff, s.limit)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(due))
	invoked := 0
	for _, b := range due {
		if _, ok := seen[b.ConversationID]; ok {
			continue
		}
		seen[b.ConversationID] = struct{}{}
		res, err := s.processor.Process(ctx, b.ConversationID)
		invoked++
		if err != nil {
			s.logger.Error("swept buffer failed", "conversation_id", b.ConversationID, "buffer_id", b.ID, "error", err)
			continue
		}
		s.logger.Info("swept overdue buffer", "conversation_id", b.ConversationID, "buffer_id", b.ID, "outcome", res.Outcome)
	}
	return invoked, nil
}
