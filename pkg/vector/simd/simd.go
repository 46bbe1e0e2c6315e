// Package simd selects between a generic and an accelerated code path for
// the vector arithmetic the flat index's scan relies on, based on the
// host CPU's feature set.
package simd

import (
	"math"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/floats"
)

// hardware reports whether the host CPU exposes the wide SIMD extensions
// gonum's floats package dispatches to on amd64/arm64. When absent we
// fall back to a manually unrolled Go loop rather than gonum's default
// scalar path, which is itself already scalar in that case.
var hardware = cpuid.CPU.Supports(cpuid.AVX2) || cpuid.CPU.Supports(cpuid.AVX) ||
	cpuid.CPU.Supports(cpuid.ASIMD)

// Cosine returns the cosine similarity of a and b. Panics if the
// vectors have different lengths, mirroring gonum's floats package
// convention.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		panic("simd: vectors must be of equal length")
	}
	if len(a) == 0 {
		return 0
	}
	if hardware {
		return gonumCosine(a, b)
	}
	return unrolledCosine(a, b)
}

// DotProduct returns the dot product of a and b.
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		panic("simd: vectors must be of equal length")
	}
	if hardware {
		return floats.Dot(toFloat64(a), toFloat64(b))
	}
	return unrolledDot(a, b)
}

func gonumCosine(a, b []float32) float64 {
	fa, fb := toFloat64(a), toFloat64(b)
	dot := floats.Dot(fa, fb)
	na := floats.Norm(fa, 2)
	nb := floats.Norm(fb, 2)
	denom := na * nb
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// unrolledCosine computes cosine similarity with a 4-wide manually
// unrolled accumulation loop, used when the host lacks the CPU features
// gonum's accelerated path requires.
func unrolledCosine(a, b []float32) float64 {
	var sumXY, sumXX, sumYY float64
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		sumXY += float64(a[i])*float64(b[i]) + float64(a[i+1])*float64(b[i+1]) +
			float64(a[i+2])*float64(b[i+2]) + float64(a[i+3])*float64(b[i+3])
		sumXX += float64(a[i])*float64(a[i]) + float64(a[i+1])*float64(a[i+1]) +
			float64(a[i+2])*float64(a[i+2]) + float64(a[i+3])*float64(a[i+3])
		sumYY += float64(b[i])*float64(b[i]) + float64(b[i+1])*float64(b[i+1]) +
			float64(b[i+2])*float64(b[i+2]) + float64(b[i+3])*float64(b[i+3])
	}
	for ; i < n; i++ {
		sumXY += float64(a[i]) * float64(b[i])
		sumXX += float64(a[i]) * float64(a[i])
		sumYY += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(sumXX) * math.Sqrt(sumYY)
	if denom == 0 {
		return 0
	}
	return sumXY / denom
}

func unrolledDot(a, b []float32) float64 {
	var sum float64
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		sum += float64(a[i])*float64(b[i]) + float64(a[i+1])*float64(b[i+1]) +
			float64(a[i+2])*float64(b[i+2]) + float64(a[i+3])*float64(b[i+3])
	}
	for ; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
