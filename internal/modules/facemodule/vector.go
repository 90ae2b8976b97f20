package facemodule

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodingDim is the dimensionality of face descriptor vectors.
const EncodingDim = 512

// EncodeVector serializes a descriptor as base64 over little-endian
// float32 values. This is the at-rest and on-the-wire form.
func EncodeVector(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode encoding: %w", err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("encoding length %d not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

// CosineSimilarity is dot(a,b)/(|a||b|), 0 when either vector is zero or
// the dimensions disagree.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
