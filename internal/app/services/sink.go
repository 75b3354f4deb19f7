package services

import (
	"encoding/base64"
	"time"

	"cuishou-server-go/internal/domain/audio"
	"cuishou-server-go/internal/domain/playback"
	"cuishou-server-go/internal/protocol"
)

// Sender 向客户端发送出站消息
type Sender interface {
	SendMessage(msg protocol.Outbound) error
}

// wsSink 把播放引擎排期的PCM块下发到WebSocket。
// 实际的起播时刻由客户端侧掌握，服务端只保证发送顺序
type wsSink struct {
	sender Sender
}

// NewWSSink 创建面向WebSocket连接的播放出口
func NewWSSink(sender Sender) playback.Sink {
	return &wsSink{sender: sender}
}

// sentChunk 已经发出的块无法撤回，Stop是空操作，
// 打断时客户端靠新的段序号丢弃旧块
type sentChunk struct{}

func (sentChunk) Stop() {}

func (s *wsSink) Schedule(segmentIndex, chunkIndex int, pcm []byte, format audio.Format, at time.Duration) (playback.Source, error) {
	msg := protocol.PCMChunk{
		SegmentIndex:  segmentIndex,
		ChunkIndex:    chunkIndex,
		PCMData:       base64.StdEncoding.EncodeToString(pcm),
		SampleRate:    format.SampleRate,
		Channels:      format.Channels,
		BitsPerSample: format.BitsPerSample,
	}
	if err := s.sender.SendMessage(msg); err != nil {
		return nil, err
	}
	return sentChunk{}, nil
}
