package audioio

import "math"

// FullScale is the int16 value that represents a float sample of 1.0.
const FullScale = 32767

// FloatToPCM16 converts float samples in [-1,1] to int16 with
// round-to-nearest after scaling by FullScale. Out-of-range values are
// clamped and NaN becomes 0. dst must be at least as long as src.
func FloatToPCM16(dst []int16, src []float64) {
	for i, x := range src {
		v := math.Round(x * FullScale)
		switch {
		case math.IsNaN(v):
			v = 0
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		dst[i] = int16(v)
	}
}

// PutSamples writes samples as little-endian PCM16 into dst, which must
// hold 2*len(samples) bytes. It returns the bytes written.
func PutSamples(dst []byte, samples []int16) int {
	for i, s := range samples {
		dst[i*2] = byte(s)
		dst[i*2+1] = byte(s >> 8)
	}
	return len(samples) * 2
}

// Silence zeroes buf.
func Silence(buf []int16) {
	for i := range buf {
		buf[i] = 0
	}
}
