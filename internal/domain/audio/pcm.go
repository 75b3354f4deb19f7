package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	platformerrors "cuishou-server-go/internal/platform/errors"
)

// Format 描述一段PCM音频的参数
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultOutputFormat TTS下行PCM格式
var DefaultOutputFormat = Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

// DefaultInputFormat ASR上行PCM格式
var DefaultInputFormat = Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}

// BytesPerSecond 每秒字节数
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// Duration 计算给定字节数对应的播放时长
func (f Format) Duration(numBytes int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(float64(numBytes) / float64(bps) * float64(time.Second))
}

// Chunk 一块原始PCM数据
type Chunk struct {
	Data      []byte
	Format    Format
	Timestamp time.Time
}

// DecodeToFloat32 将小端PCM字节解码为[-1,1)的浮点样本。
// 16位有符号除以32768，8位无符号减128后除以128。
// 其他位深按块拒绝，调用方记录错误后继续处理后续块。
func DecodeToFloat32(data []byte, bitsPerSample int) ([]float32, error) {
	switch bitsPerSample {
	case 16:
		if len(data)%2 != 0 {
			return nil, platformerrors.New(platformerrors.KindAudio, "audio.DecodeToFloat32",
				fmt.Sprintf("16位PCM字节数必须为偶数: %d", len(data)))
		}
		samples := make([]float32, len(data)/2)
		for i := 0; i < len(samples); i++ {
			s := int16(binary.LittleEndian.Uint16(data[i*2:]))
			samples[i] = float32(s) / 32768.0
		}
		return samples, nil
	case 8:
		samples := make([]float32, len(data))
		for i, b := range data {
			samples[i] = (float32(b) - 128.0) / 128.0
		}
		return samples, nil
	default:
		return nil, platformerrors.New(platformerrors.KindAudio, "audio.DecodeToFloat32",
			fmt.Sprintf("不支持的位深: %d", bitsPerSample))
	}
}

// EncodeFromFloat32 将浮点样本编码为16位小端PCM。
// 与解码同用32768比例，编码值截断到[-32768, 32767]。
func EncodeFromFloat32(samples []float32) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		scaled := math.Round(float64(s) * 32768.0)
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(scaled)))
	}
	return data
}

// RMS 计算浮点样本的均方根能量
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
