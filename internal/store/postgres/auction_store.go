package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL.
type AuctionStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ domain.AuctionStore = (*AuctionStore)(nil)

// NewAuctionStore creates a new AuctionStore. lockTimeout bounds the wait for
// an auction's row lock; zero waits indefinitely.
func NewAuctionStore(pool *pgxpool.Pool, lockTimeout time.Duration) *AuctionStore {
	return &AuctionStore{pool: pool, lockTimeout: lockTimeout}
}

const auctionSelectCols = `id, seller_id, category, mode, status,
	starting_price, current_price, reserve_price, buy_now_price, min_bid_increment,
	start_time, end_time, times_extended, total_bids, unique_bidders,
	views, watchlist_count, winner_id, version, created_at, updated_at`

func scanAuction(scanner interface{ Scan(dest ...any) error }) (domain.Auction, error) {
	var a domain.Auction
	var mode, status string
	var reserve, buyNow, increment decimal.NullDecimal
	var winnerID *string

	err := scanner.Scan(
		&a.ID, &a.SellerID, &a.Category, &mode, &status,
		&a.StartingPrice, &a.CurrentPrice, &reserve, &buyNow, &increment,
		&a.StartTime, &a.EndTime, &a.TimesExtended, &a.TotalBids, &a.UniqueBidders,
		&a.Views, &a.WatchlistCount, &winnerID, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Auction{}, err
	}

	a.Mode = domain.AuctionMode(mode)
	a.Status = domain.AuctionStatus(status)
	a.ReservePrice = fromNullDecimal(reserve)
	a.BuyNowPrice = fromNullDecimal(buyNow)
	a.MinBidIncrement = fromNullDecimal(increment)
	if winnerID != nil {
		a.WinnerID = *winnerID
	}
	return a, nil
}

func scanAuctionRows(rows pgx.Rows) ([]domain.Auction, error) {
	defer rows.Close()
	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

func toNullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts a new auction.
func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) error {
	const query = `
		INSERT INTO auctions (
			id, seller_id, category, mode, status,
			starting_price, current_price, reserve_price, buy_now_price, min_bid_increment,
			start_time, end_time, times_extended, total_bids, unique_bidders,
			views, watchlist_count, winner_id, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21
		)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.SellerID, a.Category, string(a.Mode), string(a.Status),
		a.StartingPrice, a.CurrentPrice,
		toNullDecimal(a.ReservePrice), toNullDecimal(a.BuyNowPrice), toNullDecimal(a.MinBidIncrement),
		a.StartTime, a.EndTime, a.TimesExtended, a.TotalBids, a.UniqueBidders,
		a.Views, a.WatchlistCount, nullString(a.WinnerID), a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return mapError("create auction "+a.ID, err)
	}
	return nil
}

// GetByID returns the auction without taking its lock.
func (s *AuctionStore) GetByID(ctx context.Context, id string) (domain.Auction, error) {
	query := `SELECT ` + auctionSelectCols + ` FROM auctions WHERE id = $1`
	a, err := scanAuction(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Auction{}, mapError("get auction "+id, err)
	}
	return a, nil
}

// ListDue returns auctions the sweeper must advance at now.
func (s *AuctionStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Auction, error) {
	query := `SELECT ` + auctionSelectCols + ` FROM auctions
		WHERE (status = 'SCHEDULED' AND start_time <= $1)
		   OR (status IN ('SCHEDULED', 'ACTIVE') AND end_time < $1)
		ORDER BY end_time ASC
		LIMIT $2`

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, mapError("list due auctions", err)
	}
	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, mapError("scan due auctions", err)
	}
	return auctions, nil
}

// ListActive returns ACTIVE auctions ordered by soonest end.
func (s *AuctionStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	query := `SELECT ` + auctionSelectCols + ` FROM auctions WHERE status = 'ACTIVE'`
	args := []any{}
	argIdx := 1

	if opts.Until != nil {
		query += fmt.Sprintf(" AND end_time <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY end_time ASC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("list active auctions", err)
	}
	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, mapError("scan active auctions", err)
	}
	return auctions, nil
}

// WithAuctionLock runs fn inside a transaction holding the auction's row
// lock. The lock wait is bounded by the store's lock timeout; a timeout or a
// serialization failure surfaces as domain.ErrLockContention.
func (s *AuctionStore) WithAuctionLock(ctx context.Context, id string, fn func(ctx context.Context, tx domain.AuctionTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := setLockTimeout(ctx, tx, s.lockTimeout); err != nil {
		return mapError("set lock timeout", err)
	}

	query := `SELECT ` + auctionSelectCols + ` FROM auctions WHERE id = $1 FOR UPDATE`
	a, err := scanAuction(tx.QueryRow(ctx, query, id))
	if err != nil {
		return mapError("lock auction "+id, err)
	}

	atx := &auctionTx{tx: tx, auction: a}
	leader, err := scanBid(tx.QueryRow(ctx,
		`SELECT `+bidSelectCols+` FROM bids WHERE auction_id = $1 AND status = 'WINNING'`, id))
	switch {
	case err == nil:
		atx.leader, atx.hasLeader = leader, true
	case !errors.Is(err, pgx.ErrNoRows):
		return mapError("load leader "+id, err)
	}

	if err := fn(ctx, atx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError("commit auction "+id, err)
	}
	return nil
}

// auctionTx implements domain.AuctionTx on an open pgx transaction.
type auctionTx struct {
	tx        pgx.Tx
	auction   domain.Auction
	leader    domain.Bid
	hasLeader bool
}

func (t *auctionTx) Auction() domain.Auction { return t.auction }

func (t *auctionTx) Leader() (domain.Bid, bool) { return t.leader, t.hasLeader }

func (t *auctionTx) HasBidFrom(ctx context.Context, bidderID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bids WHERE auction_id = $1 AND bidder_id = $2)`,
		t.auction.ID, bidderID,
	).Scan(&exists)
	if err != nil {
		return false, mapError("check bidder", err)
	}
	return exists, nil
}

func (t *auctionTx) SubmissionExists(ctx context.Context, submissionID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bid_submissions WHERE submission_id = $1)`, submissionID,
	).Scan(&exists)
	if err != nil {
		return false, mapError("check submission", err)
	}
	return exists, nil
}

func (t *auctionTx) InsertBid(ctx context.Context, b domain.Bid) error {
	return insertBid(ctx, t.tx, b)
}

func (t *auctionTx) UpdateBid(ctx context.Context, b domain.Bid) error {
	const query = `
		UPDATE bids
		SET amount = $2, max_auto_bid = $3, is_auto_bid = $4, status = $5, updated_at = $6
		WHERE id = $1 AND auction_id = $7`

	tag, err := t.tx.Exec(ctx, query,
		b.ID, b.Amount, toNullDecimal(b.MaxAutoBid), b.IsAutoBid, string(b.Status), b.UpdatedAt, t.auction.ID,
	)
	if err != nil {
		return mapError("update bid "+b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveAuction writes the mutable auction columns. The version column guards
// against a writer that bypassed the row lock.
func (t *auctionTx) SaveAuction(ctx context.Context, a domain.Auction) error {
	const query = `
		UPDATE auctions
		SET status = $2, current_price = $3, end_time = $4, times_extended = $5,
		    total_bids = $6, unique_bidders = $7, winner_id = $8, version = $9, updated_at = $10
		WHERE id = $1 AND version = $11`

	tag, err := t.tx.Exec(ctx, query,
		a.ID, string(a.Status), a.CurrentPrice, a.EndTime, a.TimesExtended,
		a.TotalBids, a.UniqueBidders, nullString(a.WinnerID), a.Version, a.UpdatedAt,
		t.auction.Version,
	)
	if err != nil {
		return mapError("save auction "+a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: save auction %s: %w", a.ID, domain.ErrLockContention)
	}
	t.auction = a
	return nil
}

func (t *auctionTx) RecordSubmission(ctx context.Context, sub domain.Submission) error {
	const query = `
		INSERT INTO bid_submissions (submission_id, auction_id, bidder_id, bid_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := t.tx.Exec(ctx, query,
		sub.SubmissionID, sub.AuctionID, sub.BidderID, nullString(sub.BidID), sub.CreatedAt,
	)
	if err != nil {
		return mapError("record submission "+sub.SubmissionID, err)
	}
	return nil
}

func (t *auctionTx) AppendEvents(ctx context.Context, events []domain.Event) error {
	return appendEvents(ctx, t.tx, events)
}
