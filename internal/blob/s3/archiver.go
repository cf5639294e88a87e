package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// multipartThreshold is the archive size above which uploads switch to the
// multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// Archiver implements domain.Archiver by serializing an ended auction and its
// full bid history to JSONL and uploading the result.
//
// The first line is the auction header; every following line is one bid in
// arrival order. Proxy ceilings are included because the archive is an
// operator record, not a bidder-facing view.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates a new Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, audit: audit}
}

type archiveHeader struct {
	Kind    string         `json:"kind"`
	Auction domain.Auction `json:"auction"`
}

type archiveBid struct {
	Kind       string           `json:"kind"`
	Bid        domain.Bid       `json:"bid"`
	MaxAutoBid *decimal.Decimal `json:"max_auto_bid,omitempty"`
}

// ArchivePath is the object key for an auction, partitioned by the month the
// auction ended:
//
//	archive/auctions/2026-09/<auction-id>.jsonl
func (a *Archiver) ArchivePath(auction domain.Auction) string {
	return fmt.Sprintf("archive/auctions/%s/%s.jsonl", auction.EndTime.UTC().Format("2006-01"), auction.ID)
}

// ArchiveAuction uploads the auction's bid history and records the upload in
// the audit log.
func (a *Archiver) ArchiveAuction(ctx context.Context, auction domain.Auction, bids []domain.Bid) (string, error) {
	records := make([]any, 0, len(bids)+1)
	records = append(records, archiveHeader{Kind: "auction", Auction: auction})
	for _, b := range bids {
		records = append(records, archiveBid{Kind: "bid", Bid: b, MaxAutoBid: b.MaxAutoBid})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive auction %s marshal: %w", auction.ID, err)
	}

	path := a.ArchivePath(auction)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive auction %s upload: %w", auction.ID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.auction", map[string]any{
			"auction_id": auction.ID,
			"path":       path,
			"bids":       len(bids),
			"ended_at":   auction.EndTime.UTC().Format(time.RFC3339),
		}); err != nil {
			return path, fmt.Errorf("s3blob: archive auction %s audit log: %w", auction.ID, err)
		}
	}
	return path, nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
