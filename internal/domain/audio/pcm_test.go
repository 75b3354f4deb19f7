package audio

import (
	"math"
	"testing"
	"time"

	platformerrors "cuishou-server-go/internal/platform/errors"
)

func TestDecodeToFloat32_16Bit(t *testing.T) {
	// -32768, 0, 32767
	data := []byte{0x00, 0x80, 0x00, 0x00, 0xFF, 0x7F}
	samples, err := DecodeToFloat32(data, 16)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[0] != -1.0 {
		t.Errorf("expected -1.0, got %v", samples[0])
	}
	if samples[1] != 0 {
		t.Errorf("expected 0, got %v", samples[1])
	}
	want := float32(32767.0 / 32768.0)
	if samples[2] != want {
		t.Errorf("expected %v, got %v", want, samples[2])
	}
}

func TestDecodeToFloat32_8Bit(t *testing.T) {
	data := []byte{0, 128, 255}
	samples, err := DecodeToFloat32(data, 8)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if samples[0] != -1.0 {
		t.Errorf("expected -1.0, got %v", samples[0])
	}
	if samples[1] != 0 {
		t.Errorf("expected 0, got %v", samples[1])
	}
	if samples[2] != float32(127.0/128.0) {
		t.Errorf("expected %v, got %v", float32(127.0/128.0), samples[2])
	}
}

func TestDecodeToFloat32_UnsupportedDepth(t *testing.T) {
	for _, bits := range []int{12, 24, 32} {
		_, err := DecodeToFloat32([]byte{0, 0, 0, 0, 0, 0}, bits)
		if err == nil {
			t.Errorf("expected error for %d-bit input", bits)
		}
		if !platformerrors.IsKind(err, platformerrors.KindAudio) {
			t.Errorf("expected audio kind error for %d-bit, got %v", bits, err)
		}
	}
}

func TestDecodeToFloat32_OddLength16Bit(t *testing.T) {
	if _, err := DecodeToFloat32([]byte{1, 2, 3}, 16); err == nil {
		t.Fatal("expected error for odd byte length")
	}
}

func TestRoundTripTolerance(t *testing.T) {
	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * float64(i) / 100))
	}

	decoded, err := DecodeToFloat32(EncodeFromFloat32(samples), 16)
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}

	const tolerance = 1.0 / 32768.0
	for i := range samples {
		diff := math.Abs(float64(decoded[i] - samples[i]))
		if diff > tolerance {
			t.Fatalf("sample %d diverged by %v (tolerance %v)", i, diff, tolerance)
		}
	}
}

func TestEncodeFromFloat32Scale(t *testing.T) {
	data := EncodeFromFloat32([]float32{0.9, -0.9, 1.0, -1.0, 2.0, -2.0})

	want := []int16{29491, -29491, 32767, -32768, 32767, -32768}
	for i, w := range want {
		got := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		if got != w {
			t.Errorf("sample %d encoded to %d, want %d", i, got, w)
		}
	}

	const tolerance = 1.0 / 32768.0
	decoded, err := DecodeToFloat32(data[:4], 16)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i, s := range []float32{0.9, -0.9} {
		if diff := math.Abs(float64(decoded[i] - s)); diff > tolerance {
			t.Errorf("sample %v diverged by %v after round trip (tolerance %v)", s, diff, tolerance)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	f := Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16}
	// 48000字节 = 1秒
	if d := f.Duration(48000); d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}
	if d := f.Duration(4800); d != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", d)
	}
}

func TestRMS(t *testing.T) {
	silent := make([]float32, 160)
	if got := RMS(silent); got != 0 {
		t.Errorf("expected 0 RMS for silence, got %v", got)
	}

	loud := make([]float32, 160)
	for i := range loud {
		loud[i] = 0.5
	}
	if got := RMS(loud); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("expected 0.5 RMS, got %v", got)
	}

	if got := RMS(nil); got != 0 {
		t.Errorf("expected 0 for empty input, got %v", got)
	}
}
