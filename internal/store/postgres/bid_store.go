package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// BidStore implements domain.BidStore using PostgreSQL.
type BidStore struct {
	pool *pgxpool.Pool
}

var _ domain.BidStore = (*BidStore)(nil)

// NewBidStore creates a new BidStore backed by the given connection pool.
func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

const bidSelectCols = `id, auction_id, bidder_id, submission_id, amount, max_auto_bid,
	is_auto_bid, status, seq, created_at, updated_at`

func scanBid(scanner interface{ Scan(dest ...any) error }) (domain.Bid, error) {
	var b domain.Bid
	var submissionID *string
	var ceiling decimal.NullDecimal
	var status string

	err := scanner.Scan(
		&b.ID, &b.AuctionID, &b.BidderID, &submissionID, &b.Amount, &ceiling,
		&b.IsAutoBid, &status, &b.Seq, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return domain.Bid{}, err
	}

	b.Status = domain.BidStatus(status)
	b.MaxAutoBid = fromNullDecimal(ceiling)
	if submissionID != nil {
		b.SubmissionID = *submissionID
	}
	return b, nil
}

func insertBid(ctx context.Context, q querier, b domain.Bid) error {
	const query = `
		INSERT INTO bids (
			id, auction_id, bidder_id, submission_id, amount, max_auto_bid,
			is_auto_bid, status, seq, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := q.Exec(ctx, query,
		b.ID, b.AuctionID, b.BidderID, nullString(b.SubmissionID), b.Amount, toNullDecimal(b.MaxAutoBid),
		b.IsAutoBid, string(b.Status), b.Seq, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return mapError("insert bid "+b.ID, err)
	}
	return nil
}

// GetByID returns a single bid.
func (s *BidStore) GetByID(ctx context.Context, id string) (domain.Bid, error) {
	b, err := scanBid(s.pool.QueryRow(ctx, `SELECT `+bidSelectCols+` FROM bids WHERE id = $1`, id))
	if err != nil {
		return domain.Bid{}, mapError("get bid "+id, err)
	}
	return b, nil
}

// GetWinning returns the auction's standing WINNING bid.
func (s *BidStore) GetWinning(ctx context.Context, auctionID string) (domain.Bid, error) {
	b, err := scanBid(s.pool.QueryRow(ctx,
		`SELECT `+bidSelectCols+` FROM bids WHERE auction_id = $1 AND status = 'WINNING'`, auctionID))
	if err != nil {
		return domain.Bid{}, mapError("get winning bid "+auctionID, err)
	}
	return b, nil
}

// ListByAuction returns the auction's bids in arrival order.
func (s *BidStore) ListByAuction(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error) {
	query := `SELECT ` + bidSelectCols + ` FROM bids WHERE auction_id = $1`
	args := []any{auctionID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	query += " ORDER BY seq ASC"
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
		return nil, mapError("list bids "+auctionID, err)
	}
	bids, err := scanBidRows(rows)
	if err != nil {
		return nil, mapError("scan bids "+auctionID, err)
	}
	return bids, nil
}

func scanBidRows(rows pgx.Rows) ([]domain.Bid, error) {
	defer rows.Close()
	var bids []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}
