package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// SellerStatsStore implements domain.SellerStatsStore using PostgreSQL.
type SellerStatsStore struct {
	pool *pgxpool.Pool
}

var _ domain.SellerStatsStore = (*SellerStatsStore)(nil)

// NewSellerStatsStore creates a new SellerStatsStore.
func NewSellerStatsStore(pool *pgxpool.Pool) *SellerStatsStore {
	return &SellerStatsStore{pool: pool}
}

// Get returns the reputation inputs recorded for sellerID.
func (s *SellerStatsStore) Get(ctx context.Context, sellerID string) (domain.SellerStats, error) {
	const query = `
		SELECT seller_id, completion_rate, average_rating, avg_payment_seconds,
		       total_transactions, dispute_rate, updated_at
		FROM seller_stats WHERE seller_id = $1`

	var st domain.SellerStats
	var paymentSeconds int64
	err := s.pool.QueryRow(ctx, query, sellerID).Scan(
		&st.SellerID, &st.CompletionRate, &st.AverageRating, &paymentSeconds,
		&st.TotalTransactions, &st.DisputeRate, &st.UpdatedAt,
	)
	if err != nil {
		return domain.SellerStats{}, mapError("get seller stats "+sellerID, err)
	}
	st.AvgPaymentTime = time.Duration(paymentSeconds) * time.Second
	return st, nil
}

// Upsert inserts or replaces the seller's reputation inputs.
func (s *SellerStatsStore) Upsert(ctx context.Context, st domain.SellerStats) error {
	const query = `
		INSERT INTO seller_stats (
			seller_id, completion_rate, average_rating, avg_payment_seconds,
			total_transactions, dispute_rate, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (seller_id) DO UPDATE SET
			completion_rate     = EXCLUDED.completion_rate,
			average_rating      = EXCLUDED.average_rating,
			avg_payment_seconds = EXCLUDED.avg_payment_seconds,
			total_transactions  = EXCLUDED.total_transactions,
			dispute_rate        = EXCLUDED.dispute_rate,
			updated_at          = NOW()`

	_, err := s.pool.Exec(ctx, query,
		st.SellerID, st.CompletionRate, st.AverageRating, int64(st.AvgPaymentTime/time.Second),
		st.TotalTransactions, st.DisputeRate,
	)
	if err != nil {
		return mapError("upsert seller stats "+st.SellerID, err)
	}
	return nil
}
