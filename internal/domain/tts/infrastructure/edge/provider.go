package edge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"cuishou-server-go/internal/domain/tts"
	"cuishou-server-go/internal/domain/tts/inter"
	platformerrors "cuishou-server-go/internal/platform/errors"
	"cuishou-server-go/internal/platform/logging"
)

const (
	cacheMaxEntries = 200
	cacheTTL        = 30 * time.Minute
)

type cacheEntry struct {
	result    *inter.Result
	timestamp time.Time
}

// Provider 基于微软Edge语音服务的合成实现。
// 催收话术里开场白和常用应答高度重复，按文本缓存合成结果
type Provider struct {
	config inter.Config
	logger *logging.Logger

	mutex  sync.Mutex
	cache  map[string]cacheEntry
	closed bool
}

// NewProvider 创建合成客户端
func NewProvider(config inter.Config, logger *logging.Logger) (*Provider, error) {
	if config.Voice == "" {
		config.Voice = "zh-CN-XiaoxiaoNeural"
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 24000
	}
	if config.OutputDir != "" {
		if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "edge.NewProvider", "创建输出目录失败", err)
		}
	}

	return &Provider{
		config: config,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}, nil
}

// Synthesize 合成一句话并解码成目标采样率的单声道PCM
func (p *Provider) Synthesize(ctx context.Context, text string) (*inter.Result, error) {
	if text == "" {
		return nil, platformerrors.New(platformerrors.KindTTS, "edge.Synthesize", "合成文本为空")
	}

	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil, platformerrors.New(platformerrors.KindTTS, "edge.Synthesize", "合成器已关闭")
	}
	if entry, ok := p.cache[text]; ok && time.Since(entry.timestamp) < cacheTTL {
		p.mutex.Unlock()
		p.logger.DebugTag("TTS", "命中合成缓存: %s", truncate(text, 20))
		return entry.result, nil
	}
	p.mutex.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	communicate, err := edge_tts.NewCommunicate(text, edge_tts.SetVoice(p.config.Voice))
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTTS, "edge.Synthesize", "创建Edge TTS连接失败", err)
	}

	start := time.Now()
	// Stream不感知ctx，放到单独goroutine里跑。
	// 打断时立刻带ctx错误返回
	type outputResult struct {
		data []byte
		err  error
	}
	outputCh := make(chan outputResult, 1)
	go func() {
		data, err := communicate.Stream()
		outputCh <- outputResult{data: data, err: err}
	}()

	var mp3Data []byte
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-outputCh:
		if out.err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindTTS, "edge.Synthesize", "语音合成失败", out.err)
		}
		mp3Data = out.data
	}
	p.logger.DebugTag("TTS", "合成耗时 %v, 文本: %s", time.Since(start), truncate(text, 20))

	if p.config.OutputDir != "" {
		p.saveAudioFile(text, mp3Data)
	}

	pcm, err := tts.DecodeMP3ToMono(mp3Data, p.config.SampleRate)
	if err != nil {
		return nil, err
	}

	result := &inter.Result{PCM: pcm, SampleRate: p.config.SampleRate}
	p.storeCache(text, result)
	return result, nil
}

// Close 标记关闭并清空缓存
func (p *Provider) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.closed = true
	p.cache = make(map[string]cacheEntry)
	return nil
}

func (p *Provider) storeCache(text string, result *inter.Result) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if len(p.cache) >= cacheMaxEntries {
		// 满了先淘汰最旧的一条
		var oldestKey string
		var oldest time.Time
		for key, entry := range p.cache {
			if oldestKey == "" || entry.timestamp.Before(oldest) {
				oldestKey = key
				oldest = entry.timestamp
			}
		}
		delete(p.cache, oldestKey)
	}
	p.cache[text] = cacheEntry{result: result, timestamp: time.Now()}
}

// saveAudioFile 落盘仅用于排查合成质量，失败不影响主流程
func (p *Provider) saveAudioFile(text string, mp3Data []byte) {
	name := fmt.Sprintf("tts_%d.mp3", time.Now().UnixNano())
	path := filepath.Join(p.config.OutputDir, name)
	if err := os.WriteFile(path, mp3Data, 0o644); err != nil {
		p.logger.WarnTag("TTS", "保存音频文件失败: %v", err)
		return
	}
	if p.config.DeleteFile {
		go func() {
			time.Sleep(time.Minute)
			os.Remove(path)
		}()
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
