package leads

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

const (
	defaultRefreshLookback = 72 * time.Hour
	defaultRefreshLimit    = 500
	refreshTimeout         = 5 * time.Minute
)

// OpenLister lists conversations that are still open.
type OpenLister interface {
	ListOpenIDs(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// RecencyRefresher rescores open conversations on a schedule so the recency band decays
// without new messages.
type RecencyRefresher struct {
	lister   OpenLister
	scorer   *Scorer
	lookback time.Duration
	limit    int
	logger   *logging.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *rcron.Cron
}

func NewRecencyRefresher(lister OpenLister, scorer *Scorer, logger *logging.Logger) *RecencyRefresher {
	if lister == nil || scorer == nil {
		panic("leads: lister and scorer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RecencyRefresher{
		lister:   lister,
		scorer:   scorer,
		lookback: defaultRefreshLookback,
		limit:    defaultRefreshLimit,
		logger:   logger,
		now:      time.Now,
	}
}

// Start registers the refresh on a cron schedule such as "@every 15m".
func (r *RecencyRefresher) Start(schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("leads: refresher already started")
	}
	c := rcron.New()
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if _, err := r.RefreshOnce(ctx); err != nil {
			r.logger.Error("lead recency refresh failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("leads: invalid refresh schedule %q: %w", schedule, err)
	}
	c.Start()
	r.cron = c
	r.logger.Info("lead recency refresher started", "schedule", schedule)
	return nil
}

func (r *RecencyRefresher) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// RefreshOnce rescores conversations active within the lookback (one band past the last
// recency step) and returns how many were rescored.
func (r *RecencyRefresher) RefreshOnce(ctx context.Context) (int, error) {
	since := r.now().UTC().Add(-(r.lookback + 24*time.Hour))
	ids, err := r.lister.ListOpenIDs(ctx, since, r.limit)
	if err != nil {
		return 0, err
	}
	scored := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return scored, ctx.Err()
		}
		if _, err := r.scorer.Score(ctx, id); err != nil {
			r.logger.Warn("lead refresh failed", "conversation_id", id, "error", err)
			continue
		}
		scored++
	}
	r.logger.Debug("lead recency refresh done", "candidates", len(ids), "scored", scored)
	return scored, nil
}
