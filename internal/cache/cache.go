// Package cache persists the normalized bill set of an era as JSON so the
// database can be rebuilt without re-extracting.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/bill"
	"github.com/openpolitica/proyectos-ley/internal/crawler"
	"github.com/openpolitica/proyectos-ley/internal/era"
)

const contentType = "application/json"

// Cache reads and writes era snapshots through a blob store.
type Cache struct {
	store  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
	logger *zap.Logger
}

// New builds a Cache. Objects are written under prefix, which may be empty.
func New(store crawler.BlobStore, hasher crawler.Hasher, prefix string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: store, hasher: hasher, prefix: prefix, logger: logger}
}

// ObjectPath is the blob path of period's snapshot.
func (c *Cache) ObjectPath(period era.Period) string {
	return path.Join(c.prefix, period.CacheName())
}

// Save writes bills sorted and deduplicated, returning the object URI and the
// digest of the written payload.
func (c *Cache) Save(ctx context.Context, period era.Period, bills []bill.Metadata) (string, string, error) {
	data, err := Encode(bills)
	if err != nil {
		return "", "", err
	}
	digest, err := c.hasher.Hash(data)
	if err != nil {
		return "", "", fmt.Errorf("hash cache payload: %w", err)
	}
	uri, err := c.store.PutObject(ctx, c.ObjectPath(period), contentType, bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("write cache %s: %w: %w", period, crawler.ErrPersistence, err)
	}
	c.logger.Info("cache written",
		zap.Stringer("era", period),
		zap.String("uri", uri),
		zap.Int("bills", len(bills)),
		zap.String("sha256", digest),
	)
	return uri, digest, nil
}

// Load reads period's snapshot. A missing snapshot wraps
// crawler.ErrObjectNotFound.
func (c *Cache) Load(ctx context.Context, period era.Period) ([]bill.Metadata, error) {
	data, err := c.store.GetObject(ctx, c.ObjectPath(period))
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", period, err)
	}
	bills, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", period, err)
	}
	for i, m := range bills {
		if m.Period != period {
			return nil, fmt.Errorf("read cache %s: record %d belongs to era %s", period, i, m.Period)
		}
	}
	return bills, nil
}

// Encode renders bills as indented JSON in id order.
func Encode(bills []bill.Metadata) ([]byte, error) {
	data, err := json.MarshalIndent(bill.UniqueMetadata(bills), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode cache: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a snapshot written by Encode.
func Decode(data []byte) ([]bill.Metadata, error) {
	var bills []bill.Metadata
	if err := json.Unmarshal(data, &bills); err != nil {
		return nil, fmt.Errorf("decode cache: %w", err)
	}
	return bills, nil
}
