package audio

import (
	"sync"

	"gopkg.in/hraban/opus.v2"

	platformerrors "cuishou-server-go/internal/platform/errors"
)

// OpusDecoder 把上行opus帧解码为16位PCM
type OpusDecoder struct {
	mu         sync.Mutex
	dec        *opus.Decoder
	sampleRate int
	channels   int
	// 60ms@48kHz双声道是opus单帧的上限
	buf []int16
}

// NewOpusDecoder 创建opus解码器
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindAudio, "audio.NewOpusDecoder", "创建opus解码器失败", err)
	}
	return &OpusDecoder{
		dec:        dec,
		sampleRate: sampleRate,
		channels:   channels,
		buf:        make([]int16, 5760*channels),
	}, nil
}

// Decode 解码一帧opus数据，返回小端PCM16字节
func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	if len(packet) == 0 {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.dec.Decode(packet, d.buf)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindAudio, "audio.OpusDecode", "opus解码失败", err)
	}

	samples := d.buf[:n*d.channels]
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	return pcm, nil
}
