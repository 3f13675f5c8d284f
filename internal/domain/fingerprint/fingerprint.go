// Package fingerprint computes compact tamper-evidence digests of session
// state. The digest is order-independent over its fields and is not a
// cryptographic commitment; it only makes casual payload edits visible.
package fingerprint

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Summary is the field set folded into one periodic digest.
type Summary struct {
	SessionID       string
	Elapsed         time.Duration
	Score           int64
	Level           int
	MoveCount       int
	PieceCount      int
	SuspiciousCount int
}

// Compute returns the hex digest of a state summary. Each field is hashed
// under its own label and the results are XOR-folded, so field order does
// not matter.
func Compute(s Summary) string {
	var acc uint64
	acc ^= field("session", s.SessionID)
	acc ^= field("elapsed_ms", strconv.FormatInt(s.Elapsed.Milliseconds(), 10))
	acc ^= field("score", strconv.FormatInt(s.Score, 10))
	acc ^= field("level", strconv.Itoa(s.Level))
	acc ^= field("moves", strconv.Itoa(s.MoveCount))
	acc ^= field("pieces", strconv.Itoa(s.PieceCount))
	acc ^= field("suspicious", strconv.Itoa(s.SuspiciousCount))
	return fmt.Sprintf("%016x", acc)
}

// Final folds the periodic digests with the closing summary into the
// session's final fingerprint.
func Final(periodic []string, closing Summary) string {
	acc := xxhash.Sum64String("final:" + Compute(closing))
	for _, d := range periodic {
		acc ^= xxhash.Sum64String("periodic:" + d)
	}
	return fmt.Sprintf("%016x", acc)
}

func field(label, value string) uint64 {
	return xxhash.Sum64String(label + "=" + value)
}
