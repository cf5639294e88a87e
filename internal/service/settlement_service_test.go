package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// fakeArchive plays both the archiver and the blob reader.
type fakeArchive struct {
	objects map[string][]byte
	uploads int
}

func (f *fakeArchive) ArchivePath(a domain.Auction) string { return "archive/" + a.ID + ".jsonl" }

func (f *fakeArchive) ArchiveAuction(_ context.Context, a domain.Auction, bids []domain.Bid) (string, error) {
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.uploads++
	path := f.ArchivePath(a)
	f.objects[path] = bytes.Repeat([]byte("x\n"), len(bids))
	return path, nil
}

func (f *fakeArchive) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := f.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeArchive) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

func TestComputeSettlementFees(t *testing.T) {
	svc := NewSettlementService(nil, nil, nil, discardLogger())
	fees := svc.ComputeSettlementFees("Real Estate", dec(3_000_000))
	check.Equal(t, "50000", fees.SellerFeeAmount.String())
	check.Equal(t, "30000", fees.BuyerFeeAmount.String())
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	archive := &fakeArchive{}
	svc := NewSettlementService(nil, h.store, h.store.Bids(), discardLogger()).WithArchive(archive, archive)
	sw := newTestSweeper(h, nil, nil, 0)

	a := h.english(t, 1000, nil)
	_, err := h.bids.SubmitBid(ctx, bid(a.ID, "s1", "alice", domain.ManualBid{Amount: dec(1100)}))
	assert.NoError(t, err)
	_, err = h.bids.SubmitBid(ctx, bid(a.ID, "s2", "bob", domain.ProxyBid{Ceiling: dec(3000)}))
	assert.NoError(t, err)

	_, err = svc.Settle(ctx, a.ID)
	check.True(t, errors.Is(err, domain.ErrAuctionNotActive))

	h.clock.Increment(2 * time.Hour)
	_, err = sw.Sweep(ctx)
	assert.NoError(t, err)

	out, err := svc.Settle(ctx, a.ID)
	assert.NoError(t, err)
	check.True(t, out.Sold)
	check.Equal(t, "bob", out.WinnerID)
	check.Equal(t, "1125", out.Fees.FinalPrice.String())
	check.Equal(t, "art", out.Fees.Category)
	check.Equal(t, "archive/"+a.ID+".jsonl", out.ArchivePath)
	check.Equal(t, 1, archive.uploads)

	_, err = svc.Settle(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, 1, archive.uploads)

	rc, err := svc.OpenArchive(ctx, a.ID)
	assert.NoError(t, err)
	body, err := io.ReadAll(rc)
	assert.NoError(t, err)
	check.Equal(t, 4, len(body))
}

func TestSettleUnsold(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	svc := NewSettlementService(nil, h.store, h.store.Bids(), discardLogger())
	sw := newTestSweeper(h, nil, nil, 0)
	a := h.english(t, 1000, nil)

	h.clock.Increment(2 * time.Hour)
	_, err := sw.Sweep(ctx)
	assert.NoError(t, err)

	out, err := svc.Settle(ctx, a.ID)
	assert.NoError(t, err)
	check.False(t, out.Sold)
	check.Equal(t, "", out.ArchivePath)

	_, err = svc.OpenArchive(ctx, a.ID)
	check.True(t, errors.Is(err, domain.ErrNotFound))
}
