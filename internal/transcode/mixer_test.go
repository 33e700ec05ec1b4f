package transcode

import "testing"

func TestDownmix(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		src      []float32
		want     []float32
	}{
		{"mono duplicates", 1, []float32{1, 2, 3}, []float32{1, 1, 2, 2, 3, 3}},
		{"stereo passes through", 2, []float32{1, 2, 3, 4}, []float32{1, 2, 3, 4}},
		{"three channels keep first two", 3, []float32{1, 2, 9, 3, 4, 9}, []float32{1, 2, 3, 4}},
		{"quad drops rear pair", 4, []float32{1, 2, 3, 4}, []float32{1, 2}},
		{"partial trailing frame ignored", 2, []float32{1, 2, 3}, []float32{1, 2}},
		{"no channels", 0, []float32{1, 2}, []float32{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Downmix(nil, tt.src, tt.channels)
			if !equalFloats(got, tt.want) {
				t.Errorf("Downmix() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMixer_ReusesScratch(t *testing.T) {
	var m mixer
	f := &Frame{SampleRate: 48000, Channels: 1, Samples: make([]float32, 512)}
	first := m.mix(f)
	f.Samples = f.Samples[:256]
	second := m.mix(f)
	if len(second) != 512 {
		t.Fatalf("len = %d, want 512", len(second))
	}
	if &first[0] != &second[0] {
		t.Error("scratch buffer reallocated for a smaller frame")
	}
}

func TestMixer_StereoIsNotCopied(t *testing.T) {
	var m mixer
	f := &Frame{SampleRate: 44100, Channels: 2, Samples: []float32{1, 2, 3, 4}}
	got := m.mix(f)
	if &got[0] != &f.Samples[0] {
		t.Error("stereo frame was copied")
	}
	if m.scratch != nil {
		t.Error("scratch allocated for stereo input")
	}
}
