package transcode

import "math"

// EstimateLength predicts the compressed size of a stream of the given
// duration. It undershoots by 0.2 s on purpose: HTTP clients cope with a
// short Content-Length far better than a long one.
func EstimateLength(durationSec float64, bitrateKbps int) int64 {
	v := math.Floor((durationSec - 0.2) * 1000.0 * float64(bitrateKbps) / 8.0)
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(v)
}

// DetachTolerance is how many bytes a closed-but-unfinished stream may still
// produce in the background: about two seconds of audio, to absorb rounding
// in the length estimate and the decoder's duration.
func DetachTolerance(bitrateKbps int) int64 {
	if bitrateKbps <= 0 {
		return 0
	}
	return int64(math.Ceil(2.0 * 1000.0 * float64(bitrateKbps) / 8.0))
}
