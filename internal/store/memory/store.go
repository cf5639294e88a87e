// Package memory is an in-process implementation of the engine's stores. It
// serializes work per auction with one lock slot per auction id and stages
// every write of a locked unit until the callback succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// Store holds auctions, bids, submissions, seller stats and the audit log.
type Store struct {
	mu          sync.RWMutex
	auctions    map[string]domain.Auction
	bids        map[string]domain.Bid
	byAuction   map[string][]string
	submissions map[string]domain.Submission
	stats       map[string]domain.SellerStats
	audit       []domain.AuditEntry

	slotsMu  sync.Mutex
	slots    map[string]chan struct{}
	lockWait time.Duration
}

var (
	_ domain.AuctionStore     = (*Store)(nil)
	_ domain.SellerStatsStore = (*Store)(nil)
	_ domain.AuditStore       = (*Store)(nil)
)

// New returns an empty Store. lockWait bounds how long WithAuctionLock waits
// for another holder; zero waits until ctx is done.
func New(lockWait time.Duration) *Store {
	return &Store{
		auctions:    make(map[string]domain.Auction),
		bids:        make(map[string]domain.Bid),
		byAuction:   make(map[string][]string),
		submissions: make(map[string]domain.Submission),
		stats:       make(map[string]domain.SellerStats),
		slots:       make(map[string]chan struct{}),
		lockWait:    lockWait,
	}
}

// Bids returns a domain.BidStore view over the same data.
func (s *Store) Bids() *BidStore {
	return &BidStore{s: s}
}

func (s *Store) Create(_ context.Context, a domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[a.ID]; ok {
		return fmt.Errorf("memory: create auction %s: %w", a.ID, domain.ErrAlreadyExists)
	}
	s.auctions[a.ID] = a
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[id]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []domain.Auction
	for _, a := range s.auctions {
		starting := a.Status == domain.AuctionStatusScheduled && !a.StartTime.After(now)
		ending := (a.Status == domain.AuctionStatusScheduled || a.Status == domain.AuctionStatusActive) && a.EndTime.Before(now)
		if starting || ending {
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].EndTime.Before(due[j].EndTime) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []domain.Auction
	for _, a := range s.auctions {
		if a.Status != domain.AuctionStatusActive {
			continue
		}
		if opts.Until != nil && a.EndTime.After(*opts.Until) {
			continue
		}
		active = append(active, a)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].EndTime.Before(active[j].EndTime) })
	return paginate(active, opts), nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

// WithAuctionLock runs fn holding the auction's slot. Writes made through the
// AuctionTx are applied only when fn returns nil.
func (s *Store) WithAuctionLock(ctx context.Context, id string, fn func(ctx context.Context, tx domain.AuctionTx) error) error {
	release, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	a, ok := s.auctions[id]
	var leader domain.Bid
	hasLeader := false
	for _, bidID := range s.byAuction[id] {
		if b := s.bids[bidID]; b.Status == domain.BidStatusWinning {
			leader, hasLeader = b, true
		}
	}
	s.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}

	tx := &memTx{s: s, auction: a, leader: leader, hasLeader: hasLeader}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) acquire(ctx context.Context, id string) (func(), error) {
	s.slotsMu.Lock()
	slot, ok := s.slots[id]
	if !ok {
		slot = make(chan struct{}, 1)
		s.slots[id] = slot
	}
	s.slotsMu.Unlock()

	var timeout <-chan time.Time
	if s.lockWait > 0 {
		timer := time.NewTimer(s.lockWait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-timeout:
		return nil, fmt.Errorf("memory: lock auction %s: %w", id, domain.ErrLockContention)
	case <-ctx.Done():
		return nil, fmt.Errorf("memory: lock auction %s: %w", id, ctx.Err())
	}
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range tx.subs {
		if _, dup := s.submissions[sub.SubmissionID]; dup {
			return fmt.Errorf("memory: record submission %s: %w", sub.SubmissionID, domain.ErrDuplicateSubmission)
		}
	}

	for _, b := range tx.updates {
		s.bids[b.ID] = b
	}
	for _, b := range tx.inserts {
		s.bids[b.ID] = b
		s.byAuction[b.AuctionID] = append(s.byAuction[b.AuctionID], b.ID)
	}
	if tx.saved {
		s.auctions[tx.auction.ID] = tx.auction
	}
	for _, sub := range tx.subs {
		s.submissions[sub.SubmissionID] = sub
	}
	for _, ev := range tx.events {
		s.appendAuditLocked(string(ev.Type), eventDetail(ev), ev.At)
	}
	return nil
}

// memTx stages writes for a single locked unit.
type memTx struct {
	s         *Store
	auction   domain.Auction
	leader    domain.Bid
	hasLeader bool

	saved   bool
	inserts []domain.Bid
	updates []domain.Bid
	subs    []domain.Submission
	events  []domain.Event
}

func (t *memTx) Auction() domain.Auction { return t.auction }

func (t *memTx) Leader() (domain.Bid, bool) { return t.leader, t.hasLeader }

func (t *memTx) HasBidFrom(_ context.Context, bidderID string) (bool, error) {
	for _, b := range t.inserts {
		if b.BidderID == bidderID {
			return true, nil
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, id := range t.s.byAuction[t.auction.ID] {
		if t.s.bids[id].BidderID == bidderID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) SubmissionExists(_ context.Context, submissionID string) (bool, error) {
	for _, sub := range t.subs {
		if sub.SubmissionID == submissionID {
			return true, nil
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	_, ok := t.s.submissions[submissionID]
	return ok, nil
}

func (t *memTx) InsertBid(_ context.Context, b domain.Bid) error {
	if b.Status == domain.BidStatusWinning && t.winningAfter(b.ID) {
		return fmt.Errorf("memory: insert bid %s: second WINNING bid: %w", b.ID, domain.ErrAlreadyExists)
	}
	t.inserts = append(t.inserts, b)
	return nil
}

func (t *memTx) UpdateBid(_ context.Context, b domain.Bid) error {
	t.s.mu.RLock()
	_, ok := t.s.bids[b.ID]
	t.s.mu.RUnlock()
	if !ok || b.AuctionID != t.auction.ID {
		return domain.ErrNotFound
	}
	t.updates = append(t.updates, b)
	return nil
}

// winningAfter reports whether some bid other than exclude will still be
// WINNING once the staged updates apply.
func (t *memTx) winningAfter(exclude string) bool {
	status := map[string]domain.BidStatus{}
	if t.hasLeader {
		status[t.leader.ID] = t.leader.Status
	}
	for _, b := range t.updates {
		status[b.ID] = b.Status
	}
	for _, b := range t.inserts {
		status[b.ID] = b.Status
	}
	for id, st := range status {
		if id != exclude && st == domain.BidStatusWinning {
			return true
		}
	}
	return false
}

func (t *memTx) SaveAuction(_ context.Context, a domain.Auction) error {
	if a.ID != t.auction.ID {
		return domain.ErrNotFound
	}
	t.auction = a
	t.saved = true
	return nil
}

func (t *memTx) RecordSubmission(ctx context.Context, sub domain.Submission) error {
	exists, _ := t.SubmissionExists(ctx, sub.SubmissionID)
	if exists {
		return fmt.Errorf("memory: record submission %s: %w", sub.SubmissionID, domain.ErrDuplicateSubmission)
	}
	t.subs = append(t.subs, sub)
	return nil
}

func (t *memTx) AppendEvents(_ context.Context, events []domain.Event) error {
	t.events = append(t.events, events...)
	return nil
}
