package audio

import (
	"math"
	"testing"
)

func TestFloatToPCM16SymmetricClamp(t *testing.T) {
	got := FloatToPCM16([]float32{-2, -1, -0.5, 0, 0.5, 1, 3})
	want := []int16{-32768, -32768, -16384, 0, 16383, 32767, 32767}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestDownmixAveragesChannels(t *testing.T) {
	got := downmix([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("unexpected length %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d: got %f want %f", i, got[i], want[i])
		}
	}
}

func TestResamplerHalvesRateAcrossChunks(t *testing.T) {
	r := NewResampler(32000, 16000)
	in := make([]float32, 1000)
	for i := range in {
		in[i] = float32(i)
	}

	var out []float32
	for i := 0; i < len(in); i += 100 {
		out = append(out, r.Process(in[i:i+100])...)
	}

	if len(out) < 498 || len(out) > 500 {
		t.Fatalf("expected ~500 samples, got %d", len(out))
	}
	for i, v := range out {
		if math.Abs(float64(v)-float64(2*i)) > 1e-3 {
			t.Fatalf("sample %d: got %f want %d", i, v, 2*i)
		}
	}
}

func TestResamplerUpsamplesInterpolated(t *testing.T) {
	r := NewResampler(8000, 16000)
	out := r.Process([]float32{0, 1, 0})
	want := []float32{0, 0.5, 1, 0.5}
	if len(out) != len(want) {
		t.Fatalf("expected %d samples, got %d (%v)", len(want), len(out), out)
	}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Fatalf("sample %d: got %f want %f", i, out[i], want[i])
		}
	}
}

func TestResamplerPassthroughAtTargetRate(t *testing.T) {
	r := NewResampler(16000, 16000)
	in := []float32{0.1, 0.2}
	if out := r.Process(in); len(out) != 2 || out[1] != 0.2 {
		t.Fatalf("expected passthrough, got %v", out)
	}
}
