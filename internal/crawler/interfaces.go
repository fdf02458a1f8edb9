package crawler

import (
	"context"
	"io"
	"time"

	"github.com/openpolitica/proyectos-ley/internal/bill"
	"github.com/openpolitica/proyectos-ley/internal/era"
)

// ListExtractor turns an era into its complete set of bill references.
type ListExtractor interface {
	List(ctx context.Context, e era.Era) ([]bill.Reference, error)
}

// MetadataExtractor turns one reference into a normalized record. A soft miss
// is reported as the fallback record plus an error wrapping ErrSoftMiss.
type MetadataExtractor interface {
	Metadata(ctx context.Context, e era.Era, ref bill.Reference) (bill.Metadata, error)
}

// PageFetcher retrieves a single HTML page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Waiter throttles outbound requests.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// DatabaseLoader rebuilds the relational database of an era and returns its
// location.
type DatabaseLoader interface {
	Load(ctx context.Context, period era.Period, bills []bill.Metadata) (string, error)
}

// BlobStore writes and reads cache artifacts.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Publisher pushes era outcomes to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests of cache payloads.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
