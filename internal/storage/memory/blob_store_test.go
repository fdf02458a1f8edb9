package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/openpolitica/proyectos-ley/internal/crawler"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/era.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://path/era.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	got, err := store.GetObject(context.Background(), "path/era.json")
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if string(got) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", got)
	}
	got[0] = 'X'
	if string(store.data["path/era.json"]) != "content" {
		t.Fatal("expected GetObject to return a copy")
	}
	if ct := store.ContentType("path/era.json"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestBlobStoreGetObjectMissing(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().GetObject(context.Background(), "nope")
	if !errors.Is(err, crawler.ErrObjectNotFound) {
		t.Fatalf("GetObject() error = %v, want ErrObjectNotFound", err)
	}
}
