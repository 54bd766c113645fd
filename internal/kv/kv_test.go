package kv

import (
	"bytes"
	"context"
	"testing"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*BadgerStore)(nil)
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "terminal:profiles", []byte(`[{"cart":[]}]`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, ok, err := s.Get(ctx, "terminal:profiles")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected key to exist")
	}
	if !bytes.Equal(value, []byte(`[{"cart":[]}]`)) {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	s := NewMemoryStore()

	value, ok, err := s.Get(context.Background(), "terminal:active")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok || value != nil {
		t.Fatalf("expected missing key, got ok=%v value=%q", ok, value)
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	payload := []byte("original")
	if err := s.Set(ctx, "k", payload); err != nil {
		t.Fatalf("set: %v", err)
	}
	payload[0] = 'X'

	value, _, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "original" {
		t.Fatalf("store aliased the caller's slice: %s", value)
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	s, err := NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.Fatalf("close badger: %v", err)
		}
	}()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "terminal:active"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "terminal:active", []byte("2")); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, ok, err := s.Get(ctx, "terminal:active")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || string(value) != "2" {
		t.Fatalf("expected persisted value 2, got ok=%v value=%q", ok, value)
	}
}
