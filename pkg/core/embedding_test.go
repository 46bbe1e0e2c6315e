package core

import "testing"

func TestEncodeDecodeEmbeddingRoundTrip(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.125e10, -0.0001}
	blob := EncodeEmbedding(v)
	if len(blob) != 4*len(v) {
		t.Fatalf("blob length = %d, want %d", len(blob), 4*len(v))
	}

	got, err := DecodeEmbedding(blob)
	if err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got) != len(v) {
		t.Fatalf("length = %d, want %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("got[%d] = %v, want %v", i, got[i], v[i])
		}
	}
}

func TestEncodeEmbeddingEmptyIsNil(t *testing.T) {
	if EncodeEmbedding(nil) != nil {
		t.Fatalf("expected nil blob for nil vector")
	}
	if EncodeEmbedding([]float32{}) != nil {
		t.Fatalf("expected nil blob for empty vector")
	}
}

func TestDecodeEmbeddingEmptyIsNil(t *testing.T) {
	got, err := DecodeEmbedding(nil)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for empty blob, got %v, %v", got, err)
	}
}

func TestDecodeEmbeddingRejectsMisalignedLength(t *testing.T) {
	_, err := DecodeEmbedding([]byte{1, 2, 3})
	if err == nil {
		t.Fatalf("expected error for non-multiple-of-4 blob length")
	}
}
