package core

import (
	"encoding/binary"
	"math"

	"github.com/denizumutdereli/neuralrag/pkg/apierr"
)

// EncodeEmbedding serializes a float32 vector to the raw little-endian
// blob format specified for the neurons.embedding column. A nil or empty
// vector encodes to a nil blob ("no embedding").
func EncodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding parses the raw little-endian blob format back into a
// float32 vector. A nil or empty blob decodes to nil ("no embedding").
// The dimension is inferred from the byte length, which must be a
// multiple of 4.
func DecodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, apierr.Wrap(apierr.InvalidArgument, "embedding blob length %d not divisible by 4", len(blob))
	}
	dim := len(blob) / 4
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out, nil
}
