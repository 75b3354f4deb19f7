package tts

import "testing"

func TestStereoToMonoAverages(t *testing.T) {
	// 两帧：L=100/R=200，L=-100/R=-200
	raw := []byte{
		100, 0, 200, 0,
		156, 255, 56, 255,
	}
	samples := stereoToMono(raw)
	if len(samples) != 2 {
		t.Fatalf("期望2个采样，实际 %d", len(samples))
	}
	if samples[0] != 150 {
		t.Fatalf("正值混音错误: %d", samples[0])
	}
	if samples[1] != -150 {
		t.Fatalf("负值混音错误: %d", samples[1])
	}
}

func TestResampleLinearSameRate(t *testing.T) {
	in := []int16{1, 2, 3}
	out := ResampleLinear(in, 24000, 24000)
	if len(out) != 3 || out[0] != 1 || out[2] != 3 {
		t.Fatalf("同采样率不应改变数据: %v", out)
	}
}

func TestResampleLinearUpsample(t *testing.T) {
	in := []int16{0, 100}
	out := ResampleLinear(in, 8000, 16000)
	if len(out) != 4 {
		t.Fatalf("8k升16k长度应翻倍，实际 %d", len(out))
	}
	if out[0] != 0 {
		t.Fatalf("首采样应保持: %d", out[0])
	}
	if out[1] != 50 {
		t.Fatalf("插值采样应为50: %d", out[1])
	}
	if out[3] != 100 {
		t.Fatalf("尾部应夹取最后一个采样: %d", out[3])
	}
}

func TestResampleLinearDownsample(t *testing.T) {
	in := make([]int16, 480) // 24k采样率下的20ms
	out := ResampleLinear(in, 24000, 8000)
	if len(out) != 160 {
		t.Fatalf("24k降8k长度应为三分之一，实际 %d", len(out))
	}
}

func TestMonoToBytesLittleEndian(t *testing.T) {
	out := monoToBytes([]int16{258, -2})
	want := []byte{2, 1, 254, 255}
	if len(out) != 4 {
		t.Fatalf("长度错误: %d", len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("字节%d错误: %d != %d", i, out[i], want[i])
		}
	}
}
