// Package xid mints short prefixed identifiers for values that only need to
// be unique within this terminal's own records, like auto-generated checkout
// references.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns prefix-<unixnano>-<hex>. The timestamp keeps ids sortable in
// logs; the random suffix keeps two terminals from ever colliding on a ref.
func New(prefix string) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
