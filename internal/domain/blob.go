package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader reads objects back from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies the bid history of a finished auction to cold storage and
// returns the object path.
type Archiver interface {
	ArchiveAuction(ctx context.Context, auction Auction, bids []Bid) (string, error)
	ArchivePath(auction Auction) string
}
