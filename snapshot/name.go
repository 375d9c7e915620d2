// Package snapshot ships store files to and from S3-compatible object
// storage: gzip encoding, CRC32C integrity checks, and retention cleanup.
// The store file is treated as an opaque byte stream.
package snapshot

import (
	"fmt"
	"strings"
	"time"
)

// nameLayout is the UTC timestamp embedded in snapshot names. Colons are
// not legal in many filesystems, so the time-of-day uses dashes.
const nameLayout = "2006-01-02T15-04-05"

// DefaultPrefix names snapshots when no prefix is configured.
const DefaultPrefix = "lookervault"

// Name builds a snapshot filename: {prefix}-YYYY-MM-DDTHH-MM-SS.db[.gz].
func Name(prefix string, ts time.Time, compressed bool) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	name := fmt.Sprintf("%s-%s.db", prefix, ts.UTC().Format(nameLayout))
	if compressed {
		name += ".gz"
	}
	return name
}

// ParseName splits a snapshot filename back into its parts.
func ParseName(name string) (prefix string, ts time.Time, compressed bool, err error) {
	base := name
	if strings.HasSuffix(base, ".gz") {
		compressed = true
		base = strings.TrimSuffix(base, ".gz")
	}
	if !strings.HasSuffix(base, ".db") {
		return "", time.Time{}, false, fmt.Errorf("snapshot name %q: missing .db suffix", name)
	}
	base = strings.TrimSuffix(base, ".db")

	cut := len(base) - len(nameLayout)
	if cut < 1 || base[cut-1] != '-' {
		return "", time.Time{}, false, fmt.Errorf("snapshot name %q: missing timestamp", name)
	}
	ts, err = time.Parse(nameLayout, base[cut:])
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("snapshot name %q: %w", name, err)
	}
	return base[:cut-1], ts.UTC(), compressed, nil
}

// IsCompressed reports whether a snapshot reference names a gzip payload.
func IsCompressed(name string) bool {
	return strings.HasSuffix(name, ".gz")
}
