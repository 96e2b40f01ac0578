package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/shopspring/decimal"
)

// chainSeed anchors every replay's hash chain.
const chainSeed = "QuoteLedger:replay-chain:v2"

// StateHasher links each processed quote to everything before it:
// tip[n] = sha256(tip[n-1] || le64(sequence) || digest[n]).
// Replays of identical input end on the same tip.
type StateHasher struct {
	tip [32]byte
}

func NewStateHasher() *StateHasher {
	return &StateHasher{tip: sha256.Sum256([]byte(chainSeed))}
}

// Chain folds one quote's digest into the chain and returns the new tip.
func (h *StateHasher) Chain(sequence int64, digest []byte) [32]byte {
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], uint64(sequence))

	sum := sha256.New()
	sum.Write(h.tip[:])
	sum.Write(seq[:])
	sum.Write(digest)
	copy(h.tip[:], sum.Sum(nil))

	return h.tip
}

func (h *StateHasher) Tip() [32]byte {
	return h.tip
}

func (h *StateHasher) Hex() string {
	return hex.EncodeToString(h.tip[:])
}

// stateDigest is the canonical byte encoding hashed per quote.
// Strings and amounts are length-prefixed so adjacent fields cannot alias.
type stateDigest []byte

func (d stateDigest) text(s string) stateDigest {
	d = binary.LittleEndian.AppendUint32(d, uint32(len(s)))
	return append(d, s...)
}

func (d stateDigest) num(v int64) stateDigest {
	return binary.LittleEndian.AppendUint64(d, uint64(v))
}

// amount encodes the canonical decimal text, so 1.50 and 1.5 hash alike.
func (d stateDigest) amount(v decimal.Decimal) stateDigest {
	return d.text(v.String())
}
