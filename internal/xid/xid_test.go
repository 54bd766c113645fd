package xid

import (
	"strings"
	"testing"
)

func TestNewCarriesPrefix(t *testing.T) {
	id := New("tx")
	if !strings.HasPrefix(id, "tx-") {
		t.Fatalf("expected tx- prefix, got %q", id)
	}
	if parts := strings.Split(id, "-"); len(parts) < 3 {
		t.Fatalf("expected prefix, timestamp and suffix, got %q", id)
	}
}

func TestNewDoesNotRepeat(t *testing.T) {
	seen := make(map[string]struct{}, 200)
	for i := 0; i < 200; i++ {
		id := New("tx")
		if _, dup := seen[id]; dup {
			t.Fatalf("id %q repeated", id)
		}
		seen[id] = struct{}{}
	}
}
