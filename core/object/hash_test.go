package object

import (
	"testing"
	"time"
)

func TestComputeContentHash(t *testing.T) {
	t.Run("deterministic for equal content", func(t *testing.T) {
		h1 := ComputeContentHash(StringPtr("hello world"))
		h2 := ComputeContentHash(StringPtr("hello world"))
		if h1 != h2 {
			t.Error("expected identical hashes for identical content")
		}
	})

	t.Run("differs for different content", func(t *testing.T) {
		h1 := ComputeContentHash(StringPtr("hello world"))
		h2 := ComputeContentHash(StringPtr("hello worlds"))
		if h1 == h2 {
			t.Error("expected different hashes for different content")
		}
	})

	t.Run("null content yields zero hash", func(t *testing.T) {
		h := ComputeContentHash(nil)
		if !h.IsZero() {
			t.Error("expected zero hash for null content")
		}
	})

	t.Run("empty string is not null", func(t *testing.T) {
		h := ComputeContentHash(StringPtr(""))
		if h.IsZero() {
			t.Error("empty content must hash differently from null content")
		}
	})
}

func TestComputeObjectHash_TimestampInvariance(t *testing.T) {
	path := "foo.txt"
	base := Object{
		ID:      "file:foo.txt",
		Type:    TypeFile,
		Content: StringPtr("hello world"),
		File:    &FileFields{Path: &path, FileType: "text", CharCount: 11},
	}

	early := base
	early.CreatedAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	late := base
	late.CreatedAt = time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	if ComputeObjectHash(early) != ComputeObjectHash(late) {
		t.Error("object hash must be invariant under timestamp-only changes")
	}
}

func TestComputeObjectHash_ExcludesHashFields(t *testing.T) {
	base := Object{ID: "tc_1", Type: TypeToolcall, Content: StringPtr("out"),
		Toolcall: &ToolcallFields{Tool: "read", Status: "ok"}}

	sealed := Finalize(base)
	if ComputeObjectHash(base) != ComputeObjectHash(sealed) {
		t.Error("filling hash fields must not change the object hash")
	}
}

func TestComputeObjectHash_SensitiveToFields(t *testing.T) {
	path := "foo.txt"
	base := Object{
		ID:      "file:foo.txt",
		Type:    TypeFile,
		Content: StringPtr("hello"),
		File:    &FileFields{Path: &path, FileType: "text", CharCount: 5},
	}

	renamed := base.Clone()
	other := "bar.txt"
	renamed.File.Path = &other

	if ComputeObjectHash(base) == ComputeObjectHash(renamed) {
		t.Error("path change must change the object hash")
	}

	removed := base.Clone()
	removed.Content = nil
	if ComputeObjectHash(base) == ComputeObjectHash(removed) {
		t.Error("content removal must change the object hash")
	}
}

func TestHashDistinguishesIntegerFields(t *testing.T) {
	path := "foo.txt"
	seenObject := map[Hash]int{}
	seenView := map[Hash]int{}

	// Single-byte varints are the regression case: the encoder once
	// reused its scratch buffer for the length prefix, collapsing all
	// small ints to the same digest.
	for count := -64; count <= 63; count++ {
		obj := Object{
			ID:      "file:foo.txt",
			Type:    TypeFile,
			Content: StringPtr("hello"),
			File:    &FileFields{Path: &path, FileType: "text", CharCount: count},
		}
		if prev, ok := seenObject[ComputeObjectHash(obj)]; ok {
			t.Fatalf("object hash collision: CharCount %d vs %d", prev, count)
		}
		if prev, ok := seenView[ComputeMetadataViewHash(obj)]; ok {
			t.Fatalf("view hash collision: CharCount %d vs %d", prev, count)
		}
		seenObject[ComputeObjectHash(obj)] = count
		seenView[ComputeMetadataViewHash(obj)] = count
	}
}

func TestComputeMetadataViewHash(t *testing.T) {
	path := "foo.txt"
	base := Object{
		ID:      "file:foo.txt",
		Type:    TypeFile,
		Content: StringPtr("hello"),
		File:    &FileFields{Path: &path, FileType: "text", CharCount: 5},
	}

	t.Run("content-only change leaves view hash intact", func(t *testing.T) {
		edited := base.Clone()
		edited.Content = StringPtr("olleh")

		if ComputeMetadataViewHash(base) != ComputeMetadataViewHash(edited) {
			t.Error("view hash covers only the fixed metadata field list")
		}
	})

	t.Run("metadata change alters view hash", func(t *testing.T) {
		grown := base.Clone()
		grown.File.CharCount = 6

		if ComputeMetadataViewHash(base) == ComputeMetadataViewHash(grown) {
			t.Error("char count is part of the file view")
		}
	})
}

func TestFinalize(t *testing.T) {
	obj := Finalize(Object{
		ID:      "tc_9",
		Type:    TypeToolcall,
		Content: StringPtr("result"),
		Toolcall: &ToolcallFields{
			Tool: "grep", Status: "ok",
			Args: map[string]any{"pattern": "x", "root": "."},
		},
	})

	if obj.ContentHash != ComputeContentHash(obj.Content) {
		t.Error("content hash not sealed")
	}
	if obj.ObjectHash.IsZero() || obj.MetadataViewHash.IsZero() {
		t.Error("expected all hashes filled")
	}
}

func TestHashParseRoundtrip(t *testing.T) {
	h := ComputeContentHash(StringPtr("abc"))
	parsed, err := ParseHash(h.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != h {
		t.Error("parse/String roundtrip mismatch")
	}
}
