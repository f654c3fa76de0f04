package ingest

import (
	"crypto/sha256"

	"github.com/adalundhe/weft/core/object"
)

// Cursor marks the engine's position in the harness message sequence.
// Fingerprint is a chained hash of every consumed message, so the
// engine can tell a genuine append from a replaced sequence without
// relying on incidental slice identity from the host.
type Cursor struct {
	Position    int         `json:"position"`
	Fingerprint object.Hash `json:"fingerprint"`
}

// Extend returns the cursor advanced past one consumed message.
func (c Cursor) Extend(msg Message) Cursor {
	return Cursor{
		Position:    c.Position + 1,
		Fingerprint: chainStep(c.Fingerprint, msg),
	}
}

// Matches reports whether the sequence's prefix up to the cursor
// position reproduces the cursor fingerprint, i.e. the sequence is a
// simple append of what was previously observed.
func (c Cursor) Matches(msgs []Message) bool {
	if c.Position > len(msgs) {
		return false
	}
	return ChainFingerprint(msgs[:c.Position]) == c.Fingerprint
}

// ChainFingerprint folds the message digests into a single hash.
func ChainFingerprint(msgs []Message) object.Hash {
	var fp object.Hash
	for _, msg := range msgs {
		fp = chainStep(fp, msg)
	}
	return fp
}

func chainStep(prev object.Hash, msg Message) object.Hash {
	digest := msg.digest()
	h := sha256.New()
	h.Write(prev[:])
	h.Write(digest[:])
	var next object.Hash
	copy(next[:], h.Sum(nil))
	return next
}
