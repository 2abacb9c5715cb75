package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_ReadMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	data, err := s.Read(context.Background(), "rooms")
	if err != nil {
		t.Fatalf("Expected missing collection to read cleanly, got %v", err)
	}
	if data != nil {
		t.Errorf("Expected nil document, got %q", data)
	}
}

func TestFileStore_WriteRead(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	ctx := context.Background()

	doc := []byte(`[{"id":"r1"}]`)
	if err := s.Write(ctx, "rooms", doc); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	got, err := s.Read(ctx, "rooms")
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if string(got) != string(doc) {
		t.Errorf("Expected %q, got %q", doc, got)
	}
}

func TestFileStore_WriteReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	ctx := context.Background()

	if err := s.Write(ctx, "rooms", []byte(`[1]`)); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := s.Write(ctx, "rooms", []byte(`[2]`)); err != nil {
		t.Fatalf("Failed to overwrite: %v", err)
	}

	got, err := s.Read(ctx, "rooms")
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if string(got) != `[2]` {
		t.Errorf("Expected latest document, got %q", got)
	}

	if _, err := os.Stat(filepath.Join(dir, "rooms.json.tmp")); !os.IsNotExist(err) {
		t.Error("Expected temp file to be gone after write")
	}
}
