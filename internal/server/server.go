package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/auctionengine/internal/domain"
	"github.com/alanyoungcy/auctionengine/internal/server/handler"
	"github.com/alanyoungcy/auctionengine/internal/server/middleware"
	"github.com/alanyoungcy/auctionengine/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// BidRateLimit caps bid submissions per client within BidRateWindow.
	// Zero disables the limit.
	BidRateLimit  int
	BidRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Auctions   *handler.AuctionHandler
	Bids       *handler.BidHandler
	Settlement *handler.SettlementHandler
	Scoring    *handler.ScoringHandler
}

// Server is the HTTP + WebSocket API of the auction engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered. limiter and
// wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, limiter, wsHub, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Auctions.
	mux.HandleFunc("POST /api/auctions", handlers.Auctions.CreateAuction)
	mux.HandleFunc("GET /api/auctions/trending", handlers.Scoring.Trending)
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Auctions.GetAuction)
	mux.HandleFunc("POST /api/auctions/{id}/cancel", handlers.Auctions.CancelAuction)
	mux.HandleFunc("GET /api/auctions/{id}/minimum-bid", handlers.Auctions.GetMinimumBid)
	mux.HandleFunc("GET /api/auctions/{id}/dutch-price", handlers.Auctions.GetDutchPrice)

	// Bids.
	var submit http.Handler = http.HandlerFunc(handlers.Bids.SubmitBid)
	if limiter != nil && cfg.BidRateLimit > 0 {
		submit = middleware.RateLimit(limiter, "bids", cfg.BidRateLimit, cfg.BidRateWindow, middleware.ByClientIP, logger)(submit)
	}
	mux.Handle("POST /api/auctions/{id}/bids", submit)
	mux.HandleFunc("GET /api/auctions/{id}/bids", handlers.Auctions.ListBids)

	// Settlement.
	mux.HandleFunc("GET /api/fees", handlers.Settlement.QuoteFees)
	mux.HandleFunc("POST /api/auctions/{id}/settle", handlers.Settlement.Settle)
	mux.HandleFunc("GET /api/auctions/{id}/archive", handlers.Settlement.DownloadArchive)

	// Scoring.
	mux.HandleFunc("GET /api/sellers/{id}/reputation", handlers.Scoring.SellerReputation)
	mux.HandleFunc("POST /api/scores/reputation", handlers.Scoring.ScoreReputation)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
