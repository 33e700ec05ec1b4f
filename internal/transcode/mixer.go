package transcode

// Downmix writes the stereo rendition of interleaved src (with the given
// channel count) into dst, growing dst if needed, and returns it.
//
//	1 channel:  duplicated into left and right
//	2 channels: copied unchanged
//	3+:         first two channels kept, the rest dropped
func Downmix(dst, src []float32, channels int) []float32 {
	if channels <= 0 {
		return dst[:0]
	}
	frames := len(src) / channels
	if cap(dst) < frames*2 {
		dst = make([]float32, frames*2)
	}
	dst = dst[:frames*2]

	switch channels {
	case 1:
		for i := 0; i < frames; i++ {
			dst[2*i] = src[i]
			dst[2*i+1] = src[i]
		}
	case 2:
		copy(dst, src[:frames*2])
	default:
		for i := 0; i < frames; i++ {
			base := i * channels
			dst[2*i] = src[base]
			dst[2*i+1] = src[base+1]
		}
	}
	return dst
}

// mixer owns the downmix scratch buffer for one stream.
type mixer struct {
	scratch []float32
}

// mix returns stereo samples for f. Stereo frames are returned as-is
// without a copy; everything else goes through the scratch buffer.
func (m *mixer) mix(f *Frame) []float32 {
	if f.Channels == 2 {
		return f.Samples[:f.SampleCount()*2]
	}
	m.scratch = Downmix(m.scratch, f.Samples, f.Channels)
	return m.scratch
}
