package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// SweeperConfig controls the lifecycle loop.
type SweeperConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	// RankEvery is how often the urgency ranking is rebuilt. Zero disables it.
	RankEvery time.Duration
}

// Sweeper advances auctions whose start or end time has passed. Each
// transition takes the auction's lock, so a bid that arrives while the
// sweeper closes an auction is either resolved first or rejected as not
// active.
type Sweeper struct {
	auctions  domain.AuctionStore
	cache     domain.AuctionCache
	publisher domain.EventPublisher
	scoring   *ScoringService
	dedup     *Dedup
	cfg       SweeperConfig
	clock     clock.Clock
	logger    *slog.Logger

	lastRank time.Time
}

// NewSweeper creates a Sweeper. cache, publisher, scoring and dedup may be
// nil.
func NewSweeper(
	auctions domain.AuctionStore,
	cache domain.AuctionCache,
	publisher domain.EventPublisher,
	scoring *ScoringService,
	dedup *Dedup,
	cfg SweeperConfig,
	clk clock.Clock,
	logger *slog.Logger,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Sweeper{
		auctions:  auctions,
		cache:     cache,
		publisher: publisher,
		scoring:   scoring,
		dedup:     dedup,
		cfg:       cfg,
		clock:     clk,
		logger:    logger.With(slog.String("component", "sweeper")),
	}
}

// Run sweeps every interval until ctx is cancelled. Call in a goroutine.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "sweeper started", slog.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweeper: sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep runs one pass and returns how many auctions changed state.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.auctions.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("sweeper: list due: %w", err)
	}

	var advanced atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, a := range due {
		id := a.ID
		g.Go(func() error {
			changed, err := s.Advance(gctx, id)
			if err != nil {
				// Contended or failed auctions are picked up on the next tick.
				s.logger.WarnContext(gctx, "sweeper: advance failed",
					slog.String("auction_id", id),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if changed {
				advanced.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(advanced.Load()), err
	}

	if s.dedup != nil {
		s.dedup.Cleanup()
	}
	s.maybeRank(ctx, now)
	return int(advanced.Load()), nil
}

func (s *Sweeper) maybeRank(ctx context.Context, now time.Time) {
	if s.scoring == nil || s.cfg.RankEvery <= 0 || now.Sub(s.lastRank) < s.cfg.RankEvery {
		return
	}
	if _, err := s.scoring.RefreshRanking(ctx); err != nil {
		s.logger.WarnContext(ctx, "sweeper: refresh ranking failed", slog.String("error", err.Error()))
		return
	}
	s.lastRank = now
}

// Advance applies every lifecycle transition due for one auction under its
// lock and reports whether anything changed.
func (s *Sweeper) Advance(ctx context.Context, id string) (bool, error) {
	var (
		after    domain.Auction
		leaderID string
		events   []domain.Event
	)
	err := s.auctions.WithAuctionLock(ctx, id, func(ctx context.Context, tx domain.AuctionTx) error {
		a := tx.Auction()
		now := s.clock.Now()

		if a.Status == domain.AuctionStatusScheduled && !now.Before(a.StartTime) {
			a.Status = domain.AuctionStatusActive
			events = append(events, domain.Event{
				Type: domain.EventAuctionActivated, AuctionID: a.ID,
				Amount: a.CurrentPrice, EndTime: a.EndTime, At: now,
			})
		}
		leader, hasLeader := tx.Leader()
		if hasLeader {
			leaderID = leader.BidderID
		}
		if a.Status == domain.AuctionStatusActive && now.After(a.EndTime) {
			a.Status = domain.AuctionStatusEnded
			if hasLeader && a.ReserveMet(leader.Amount) {
				a.WinnerID = leader.BidderID
			}
			events = append(events, domain.Event{
				Type: domain.EventAuctionClosed, AuctionID: a.ID, BidderID: a.WinnerID,
				Amount: a.CurrentPrice, EndTime: a.EndTime, At: now,
			})
		}
		if len(events) == 0 {
			return nil
		}

		a.Version++
		a.UpdatedAt = now
		if err := tx.SaveAuction(ctx, a); err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, events); err != nil {
			return err
		}
		after = a
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("sweeper: advance %s: %w", id, err)
	}
	if len(events) == 0 {
		return false, nil
	}

	s.logger.InfoContext(ctx, "sweeper: auction advanced",
		slog.String("auction_id", id),
		slog.String("status", string(after.Status)),
		slog.String("winner_id", after.WinnerID),
	)
	publishAndCache(ctx, s.publisher, s.cache, s.logger, after, leaderID, events, s.clock.Now())
	return true, nil
}
