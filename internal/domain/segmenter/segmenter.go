package segmenter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"cuishou-server-go/internal/domain/audio"
	platformerrors "cuishou-server-go/internal/platform/errors"
	"cuishou-server-go/internal/platform/logging"
	"cuishou-server-go/internal/util"
)

// Mode 分段策略
type Mode string

const (
	// ModeContinuous 固定节奏透传：每帧立刻进入出站队列，由ASR端点检测断句
	ModeContinuous Mode = "continuous"
	// ModeEdge 边沿触发：VAD语音段内累积帧，语音结束时整段吐出
	ModeEdge Mode = "edge"
)

// Utterance 一段完整的用户语音
type Utterance struct {
	ID        string
	Chunks    []audio.Chunk
	StartedAt time.Time
	EndedAt   time.Time
}

// Bytes 拼接整段PCM
func (u *Utterance) Bytes() []byte {
	var total int
	for _, c := range u.Chunks {
		total += len(c.Data)
	}
	data := make([]byte, 0, total)
	for _, c := range u.Chunks {
		data = append(data, c.Data...)
	}
	return data
}

// Segmenter 把音频帧流切分为语音单元。
// 出站队列有界，溢出时丢最旧帧并告警，绝不阻塞采集侧。
type Segmenter struct {
	mu sync.Mutex

	mode   Mode
	out    *util.BoundedQueue[audio.Chunk]
	logger *logging.Logger

	current     *Utterance
	onUtterance func(Utterance)
}

// Config 分段器配置
type Config struct {
	Mode Mode
	// QueueCapacity 出站队列容量，0表示无界
	QueueCapacity int
}

// New 创建分段器
func New(cfg Config, logger *logging.Logger) (*Segmenter, error) {
	switch cfg.Mode {
	case ModeContinuous, ModeEdge:
	case "":
		cfg.Mode = ModeContinuous
	default:
		return nil, platformerrors.New(platformerrors.KindConfig, "segmenter.New",
			"未知的分段策略: "+string(cfg.Mode))
	}

	return &Segmenter{
		mode:   cfg.Mode,
		out:    util.NewBoundedQueue[audio.Chunk](cfg.QueueCapacity),
		logger: logger,
	}, nil
}

// OnUtterance 注册整段语音回调，仅边沿模式使用
func (s *Segmenter) OnUtterance(fn func(Utterance)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUtterance = fn
}

// OnChunk 接收一帧音频。speaking为VAD当前状态。
func (s *Segmenter) OnChunk(chunk audio.Chunk, speaking bool) error {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()

	switch mode {
	case ModeContinuous:
		dropped, err := s.out.Push(chunk)
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindAudio, "segmenter.OnChunk", "入队失败", err)
		}
		if dropped {
			s.logger.WarnTag("ASR", "出站队列已满，丢弃最旧音频帧")
		}
		return nil

	case ModeEdge:
		if !speaking {
			return nil
		}
		s.mu.Lock()
		if s.current == nil {
			s.current = &Utterance{
				ID:        uuid.NewString(),
				StartedAt: chunk.Timestamp,
			}
		}
		s.current.Chunks = append(s.current.Chunks, chunk)
		s.mu.Unlock()
		return nil
	}
	return nil
}

// EndUtterance 语音结束边沿：边沿模式下吐出当前整段
func (s *Segmenter) EndUtterance(at time.Time) {
	s.mu.Lock()
	utt := s.current
	s.current = nil
	fn := s.onUtterance
	s.mu.Unlock()

	if utt == nil || len(utt.Chunks) == 0 {
		return
	}
	utt.EndedAt = at

	if fn != nil {
		fn(*utt)
	}
}

// Pop 从出站队列取一帧，语义与util.BoundedQueue.Pop一致
func (s *Segmenter) Pop(ctx context.Context, timeout time.Duration) (audio.Chunk, error) {
	return s.out.Pop(ctx, timeout)
}

// QueueLen 出站队列当前长度
func (s *Segmenter) QueueLen() int {
	return s.out.Len()
}

// Close 关闭出站队列
func (s *Segmenter) Close() {
	s.out.Close()
}
