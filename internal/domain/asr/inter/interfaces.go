package inter

// Provider 流式识别上游接口
type Provider interface {
	// Start 建立上游识别会话，返回时会话已就绪可接收音频
	Start() error

	// SendAudio 发送一帧PCM音频
	SendAudio(data []byte) error

	// Stop 通知上游识别结束，剩余结果仍会回调
	Stop() error

	// SetEventListener 设置识别结果监听器
	SetEventListener(listener EventListener)

	// Close 释放上游连接
	Close() error
}

// EventListener 识别事件监听器
type EventListener interface {
	// OnTranscript 接收识别结果，isFinal为true表示一句话结束
	OnTranscript(text string, isFinal bool)

	// OnError 上游识别出错
	OnError(err error)
}

// Config 识别配置
type Config struct {
	Model      string `json:"model"`
	SampleRate int    `json:"sample_rate"`
	Format     string `json:"format"`
	Language   string `json:"language"`
}
