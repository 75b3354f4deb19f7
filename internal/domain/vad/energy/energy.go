package energy

import (
	"time"

	"cuishou-server-go/internal/domain/audio"
	"cuishou-server-go/internal/domain/vad/inter"
	platformerrors "cuishou-server-go/internal/platform/errors"
)

// Detector 基于RMS能量的VAD实现。
// 有声帧的能量超过阈值即进入语音段；语音段内的静音不立即结束语音，
// 需要持续静音超过挂起时长（hangover）才产生语音结束边沿，
// 这样自然停顿不会把一句话切成两段。
type Detector struct {
	config inter.Config

	speaking     bool
	speechFrames int
	lastVoiceAt  time.Time
}

// NewDetector 创建能量VAD检测器
func NewDetector(config inter.Config) (*Detector, error) {
	if config.EnergyThreshold <= 0 {
		return nil, platformerrors.New(platformerrors.KindAudio, "energy.NewDetector", "能量阈值必须大于0")
	}
	if config.Hangover <= 0 {
		config.Hangover = 1500 * time.Millisecond
	}
	if config.MinSpeechFrames <= 0 {
		config.MinSpeechFrames = 1
	}
	return &Detector{config: config}, nil
}

// ProcessFrame 处理一帧样本
func (d *Detector) ProcessFrame(samples []float32, now time.Time) (inter.Edge, error) {
	if len(samples) == 0 {
		return inter.EdgeNone, nil
	}

	energy := audio.RMS(samples)
	voiced := energy >= d.config.EnergyThreshold

	if voiced {
		d.lastVoiceAt = now
		if !d.speaking {
			d.speechFrames++
			if d.speechFrames >= d.config.MinSpeechFrames {
				d.speaking = true
				return inter.EdgeSpeechStarted, nil
			}
		}
		return inter.EdgeNone, nil
	}

	if d.speaking {
		if now.Sub(d.lastVoiceAt) >= d.config.Hangover {
			d.speaking = false
			d.speechFrames = 0
			return inter.EdgeSpeechStopped, nil
		}
		return inter.EdgeNone, nil
	}

	d.speechFrames = 0
	return inter.EdgeNone, nil
}

// IsSpeaking 当前是否处于语音段内
func (d *Detector) IsSpeaking() bool {
	return d.speaking
}

// Reset 重置检测状态
func (d *Detector) Reset() {
	d.speaking = false
	d.speechFrames = 0
	d.lastVoiceAt = time.Time{}
}

// Close 释放资源
func (d *Detector) Close() error {
	return nil
}

// GetConfig 获取配置
func (d *Detector) GetConfig() inter.Config {
	return d.config
}
