package memory

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// BidStore is the read side of the bid history kept by a Store.
type BidStore struct {
	s *Store
}

var _ domain.BidStore = (*BidStore)(nil)

func (b *BidStore) GetByID(_ context.Context, id string) (domain.Bid, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	bid, ok := b.s.bids[id]
	if !ok {
		return domain.Bid{}, domain.ErrNotFound
	}
	return bid, nil
}

func (b *BidStore) GetWinning(_ context.Context, auctionID string) (domain.Bid, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	for _, id := range b.s.byAuction[auctionID] {
		if bid := b.s.bids[id]; bid.Status == domain.BidStatusWinning {
			return bid, nil
		}
	}
	return domain.Bid{}, domain.ErrNotFound
}

// ListByAuction returns bids in arrival order.
func (b *BidStore) ListByAuction(_ context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error) {
	b.s.mu.RLock()
	bids := make([]domain.Bid, 0, len(b.s.byAuction[auctionID]))
	for _, id := range b.s.byAuction[auctionID] {
		bid := b.s.bids[id]
		if opts.Since != nil && bid.CreatedAt.Before(*opts.Since) {
			continue
		}
		bids = append(bids, bid)
	}
	b.s.mu.RUnlock()

	sort.Slice(bids, func(i, j int) bool { return bids[i].Seq < bids[j].Seq })
	return paginate(bids, opts), nil
}

// Get returns the recorded reputation inputs for sellerID.
func (s *Store) Get(_ context.Context, sellerID string) (domain.SellerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[sellerID]
	if !ok {
		return domain.SellerStats{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *Store) Upsert(_ context.Context, st domain.SellerStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.UpdatedAt = time.Now().UTC()
	s.stats[st.SellerID] = st
	return nil
}

func (s *Store) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAuditLocked(event, detail, time.Now().UTC())
	return nil
}

// List returns audit entries newest first.
func (s *Store) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	entries := make([]domain.AuditEntry, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		entries = append(entries, e)
	}
	s.mu.RUnlock()
	return paginate(entries, opts), nil
}

func (s *Store) appendAuditLocked(event string, detail map[string]any, at time.Time) {
	s.audit = append(s.audit, domain.AuditEntry{
		ID:        int64(len(s.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: at,
	})
}

// eventDetail flattens an event into the same JSON shape the postgres audit
// log stores.
func eventDetail(ev domain.Event) map[string]any {
	raw, err := json.Marshal(ev)
	if err != nil {
		return map[string]any{"type": string(ev.Type), "auction_id": ev.AuctionID}
	}
	var detail map[string]any
	_ = json.Unmarshal(raw, &detail)
	return detail
}
