package object

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"hash"
)

const HashSize = 32

type Hash [HashSize]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}

func (h Hash) IsZero() bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}

func (h Hash) Equal(other Hash) bool {
	return h == other
}

func ParseHash(s string) (Hash, error) {
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], bytes)
	return h, nil
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(data []byte) error {
	parsed, err := ParseHash(string(data))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ComputeContentHash hashes content alone. The zero hash stands for
// null content so that removed versions carry no content hash.
func ComputeContentHash(content *string) Hash {
	if content == nil {
		return Hash{}
	}
	return sha256.Sum256([]byte(*content))
}

// canonicalHasher accumulates fields with length prefixes so that
// adjacent fields can never collide by concatenation.
type canonicalHasher struct {
	h   hash.Hash
	buf [binary.MaxVarintLen64]byte
}

func newCanonicalHasher() *canonicalHasher {
	return &canonicalHasher{h: sha256.New()}
}

func (c *canonicalHasher) writeBytes(b []byte) {
	n := binary.PutUvarint(c.buf[:], uint64(len(b)))
	c.h.Write(c.buf[:n])
	c.h.Write(b)
}

func (c *canonicalHasher) writeString(s string) {
	c.writeBytes([]byte(s))
}

func (c *canonicalHasher) writeOptString(s *string) {
	if s == nil {
		c.writeBytes([]byte{0x00})
		return
	}
	c.writeBytes([]byte{0x01})
	c.writeString(*s)
}

func (c *canonicalHasher) writeBool(b bool) {
	if b {
		c.writeBytes([]byte{0x01})
		return
	}
	c.writeBytes([]byte{0x00})
}

func (c *canonicalHasher) writeInt(v int) {
	// writeBytes reuses c.buf for the length prefix, so the value
	// bytes need their own buffer.
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], int64(v))
	c.writeBytes(buf[:n])
}

// writeJSON encodes structured fields through encoding/json, which
// sorts map keys, making the encoding deterministic for equal values.
func (c *canonicalHasher) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.writeString("!marshal-error")
		return
	}
	c.writeBytes(data)
}

func (c *canonicalHasher) sum() Hash {
	var h Hash
	copy(h[:], c.h.Sum(nil))
	return h
}

// ComputeObjectHash hashes every identity-bearing field of the object,
// excluding timestamps and the three hash fields, so two structurally
// equal documents hash identically regardless of when they were written.
func ComputeObjectHash(obj Object) Hash {
	c := newCanonicalHasher()
	c.writeString(string(obj.Type))
	c.writeString(obj.ID)
	c.writeOptString(obj.Content)
	c.writeString(obj.Provenance)
	c.writeBool(obj.Locked)
	c.writeString(obj.Nickname)

	switch obj.Type {
	case TypeFile:
		if f := obj.File; f != nil {
			c.writeOptString(f.Path)
			c.writeString(f.FileType)
			c.writeInt(f.CharCount)
		}
	case TypeToolcall:
		if t := obj.Toolcall; t != nil {
			c.writeString(t.Tool)
			c.writeJSON(t.Args)
			c.writeString(t.Status)
			c.writeString(t.ChatRef)
			c.writeJSON(t.FileRefs)
		}
	case TypeChat:
		if ch := obj.Chat; ch != nil {
			c.writeJSON(ch.Turns)
			c.writeString(ch.SessionRef)
			c.writeInt(ch.TurnCount)
			c.writeJSON(ch.ToolcallRefs)
		}
	case TypeSession:
		if s := obj.Session; s != nil {
			c.writeJSON(s)
		}
	case TypeSystemPrompt:
		if p := obj.Prompt; p != nil {
			c.writeString(p.SessionRef)
		}
	}
	return c.sum()
}

// ComputeMetadataViewHash hashes the fixed per-type field list used for
// lightweight rendering, so renderers can detect metadata-only changes
// without comparing content.
func ComputeMetadataViewHash(obj Object) Hash {
	c := newCanonicalHasher()
	c.writeString(string(obj.Type))
	c.writeString(obj.ID)

	switch obj.Type {
	case TypeFile:
		c.writeString(obj.Nickname)
		if f := obj.File; f != nil {
			c.writeOptString(f.Path)
			c.writeString(f.FileType)
			c.writeInt(f.CharCount)
		}
	case TypeToolcall:
		c.writeString(obj.Nickname)
		if t := obj.Toolcall; t != nil {
			c.writeString(t.Tool)
			c.writeString(t.Status)
		}
	case TypeChat:
		if ch := obj.Chat; ch != nil {
			c.writeInt(ch.TurnCount)
		}
	case TypeSession:
		if s := obj.Session; s != nil {
			c.writeString(s.Harness)
			c.writeString(s.SessionID)
		}
	case TypeSystemPrompt:
		c.writeString(obj.Nickname)
	}
	return c.sum()
}
