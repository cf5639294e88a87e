package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/auctionengine/internal/bidding"
	"github.com/alanyoungcy/auctionengine/internal/server"
	"github.com/alanyoungcy/auctionengine/internal/server/handler"
	"github.com/alanyoungcy/auctionengine/internal/server/ws"
	"github.com/alanyoungcy/auctionengine/internal/service"
)

// services holds the engine services built over one set of dependencies.
type services struct {
	bids       *service.BidService
	auctions   *service.AuctionService
	settlement *service.SettlementService
	scoring    *service.ScoringService
	sweeper    *service.Sweeper
	dedup      *service.Dedup
}

func (a *App) buildServices(deps *Dependencies) *services {
	b := a.cfg.Bidding
	extension, threshold, maxExtensions := b.ExtensionPolicy()
	resolver := bidding.NewResolver(bidding.ExtensionPolicy{
		Extension:     extension,
		Threshold:     threshold,
		MaxExtensions: maxExtensions,
	})

	dedup := service.NewDedup(b.DedupTTL.Duration, deps.Clock)
	bids := service.NewBidService(deps.Auctions, resolver, deps.Clock, a.logger).
		WithCache(deps.Cache).
		WithPublisher(deps.Publisher).
		WithDedup(dedup)
	if b.LeaseTTL.Duration > 0 && deps.Leases != nil {
		bids = bids.WithLease(deps.Leases, b.LeaseTTL.Duration)
	}

	settlement := service.NewSettlementService(deps.Fees, deps.Auctions, deps.Bids, a.logger)
	if deps.Archiver != nil {
		settlement = settlement.WithArchive(deps.Archiver, deps.BlobReader)
	}

	scoring := service.NewScoringService(deps.Auctions, deps.SellerStats, deps.Ranking, a.cfg.Ranking.Limit, deps.Clock, a.logger)

	sweeper := service.NewSweeper(deps.Auctions, deps.Cache, deps.Publisher, scoring, dedup,
		service.SweeperConfig{
			Interval:    a.cfg.Sweeper.Interval.Duration,
			BatchSize:   a.cfg.Sweeper.BatchSize,
			Concurrency: a.cfg.Sweeper.Concurrency,
			RankEvery:   a.cfg.Ranking.RefreshInterval.Duration,
		}, deps.Clock, a.logger)

	return &services{
		bids:       bids,
		auctions:   service.NewAuctionService(deps.Auctions, deps.Bids, deps.Cache, deps.Publisher, deps.Clock, a.logger),
		settlement: settlement,
		scoring:    scoring,
		sweeper:    sweeper,
		dedup:      dedup,
	}
}

// ServerMode serves the HTTP API and the websocket feed. Auction lifecycle
// transitions are left to a separate sweeper process.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering server mode")
	svc := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svc)

	// The sweeper prunes the dedup cache in the other modes.
	g.Go(func() error {
		ticker := deps.Clock.NewTicker(max(a.cfg.Bidding.DedupTTL.Duration, time.Minute))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C():
				svc.dedup.Cleanup()
			}
		}
	})

	return wait(g)
}

// SweeperMode runs only the lifecycle loop and the ranking refresh.
func (a *App) SweeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering sweeper mode")
	svc := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.sweeper.Run(ctx) })
	return wait(g)
}

// FullMode runs the HTTP API and the sweeper in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering full mode")
	svc := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svc)
	g.Go(func() error { return svc.sweeper.Run(ctx) })
	return wait(g)
}

// wait treats cancellation as a clean shutdown.
func wait(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// startHTTPServer adds the HTTP server, and the websocket hub when a signal
// bus is wired, to the given errgroup. The server is shut down gracefully
// when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, a.cfg.Storage, deps.Clock.Now().UTC()),
		Auctions: handler.NewAuctionHandler(svc.auctions, deps.Clock.Now, a.logger),
		Bids: handler.NewBidHandler(svc.bids, handler.RetryPolicy{
			Attempts: a.cfg.Bidding.RetryAttempts,
			Backoff:  a.cfg.Bidding.RetryBackoff.Duration,
		}, a.logger),
		Settlement: handler.NewSettlementHandler(svc.settlement, a.logger),
		Scoring:    handler.NewScoringHandler(svc.scoring, a.logger),
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, deps.Cache, a.logger).WithReplay(a.cfg.Redis.EventStream)
		g.Go(func() error { return hub.Run(ctx) })
	} else {
		a.logger.WarnContext(ctx, "websocket feed disabled: no signal bus")
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		BidRateLimit:  a.cfg.Bidding.RateLimit,
		BidRateWindow: a.cfg.Bidding.RateWindow.Duration,
	}, handlers, deps.RateLimiter, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			a.logger.Warn("HTTP server shutdown incomplete", slog.String("error", err.Error()))
		}
		return nil
	})
}
