package tts

import (
	"bytes"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"

	platformerrors "cuishou-server-go/internal/platform/errors"
)

// DecodeMP3ToMono 把MP3解码成16位小端单声道PCM并重采样到targetRate。
// go-mp3固定输出双声道交错采样，这里取两声道的均值
func DecodeMP3ToMono(data []byte, targetRate int) ([]byte, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTTS, "tts.DecodeMP3ToMono", "MP3解码失败", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTTS, "tts.DecodeMP3ToMono", "读取PCM数据失败", err)
	}

	samples := stereoToMono(raw)
	if decoder.SampleRate() != targetRate && targetRate > 0 {
		samples = ResampleLinear(samples, decoder.SampleRate(), targetRate)
	}
	return monoToBytes(samples), nil
}

// stereoToMono 把双声道交错的16位小端字节流混成单声道采样
func stereoToMono(raw []byte) []int16 {
	frames := len(raw) / 4
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		left := int16(uint16(raw[i*4]) | uint16(raw[i*4+1])<<8)
		right := int16(uint16(raw[i*4+2]) | uint16(raw[i*4+3])<<8)
		samples[i] = int16((int32(left) + int32(right)) / 2)
	}
	return samples
}

// ResampleLinear 线性插值重采样
func ResampleLinear(samples []int16, from, to int) []int16 {
	if from == to || len(samples) == 0 || from <= 0 || to <= 0 {
		return samples
	}

	outLen := int(int64(len(samples)) * int64(to) / int64(from))
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		s0 := float64(samples[idx])
		s1 := float64(samples[idx+1])
		out[i] = int16(s0 + (s1-s0)*frac)
	}
	return out
}

func monoToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(uint16(s))
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}
