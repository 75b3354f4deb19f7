package dashscope

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cuishou-server-go/internal/domain/asr/inter"
	platformerrors "cuishou-server-go/internal/platform/errors"
	"cuishou-server-go/internal/platform/logging"
)

const (
	actionRunTask    = "run-task"
	actionFinishTask = "finish-task"

	eventTaskStarted     = "task-started"
	eventResultGenerated = "result-generated"
	eventTaskFinished    = "task-finished"
	eventTaskFailed      = "task-failed"

	// 等待task-started/task-finished的上限
	handshakeTimeout = 10 * time.Second
)

// Config DashScope实时识别配置
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	SampleRate int
	Format     string
}

// Recognizer paraformer实时识别的WebSocket客户端。
// 实现inter.Provider：Start建链并等待task-started，
// SendAudio发二进制帧，Stop发finish-task后等上游收尾。
type Recognizer struct {
	config Config
	logger *logging.Logger

	connMutex sync.Mutex
	conn      *websocket.Conn
	taskID    string
	listener  inter.EventListener

	started  chan struct{}
	finished chan struct{}
	readDone chan struct{}
	closed   bool
}

// NewRecognizer 创建识别客户端
func NewRecognizer(config Config, logger *logging.Logger) (*Recognizer, error) {
	if config.APIKey == "" {
		return nil, platformerrors.New(platformerrors.KindConfig, "dashscope.NewRecognizer", "缺少api_key配置")
	}
	if config.BaseURL == "" {
		config.BaseURL = "wss://dashscope.aliyuncs.com/api-ws/v1/inference"
	}
	if config.Model == "" {
		config.Model = "paraformer-realtime-8k-v2"
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 8000
	}
	if config.Format == "" {
		config.Format = "pcm"
	}

	return &Recognizer{
		config: config,
		logger: logger,
	}, nil
}

// SetEventListener 设置识别结果监听器
func (r *Recognizer) SetEventListener(listener inter.EventListener) {
	r.connMutex.Lock()
	defer r.connMutex.Unlock()
	r.listener = listener
}

type eventMessage struct {
	Header struct {
		Event        string `json:"event"`
		TaskID       string `json:"task_id"`
		ErrorCode    string `json:"error_code,omitempty"`
		ErrorMessage string `json:"error_message,omitempty"`
	} `json:"header"`
	Payload struct {
		Output struct {
			Sentence struct {
				Text    string `json:"text"`
				EndTime *int64 `json:"end_time"`
			} `json:"sentence"`
		} `json:"output"`
	} `json:"payload"`
}

// Start 建立识别任务。返回时上游已发回task-started。
func (r *Recognizer) Start() error {
	r.connMutex.Lock()
	if r.conn != nil {
		r.connMutex.Unlock()
		return platformerrors.New(platformerrors.KindASR, "dashscope.Start", "识别任务已在运行")
	}

	header := http.Header{}
	header.Set("Authorization", "bearer "+r.config.APIKey)

	conn, _, err := websocket.DefaultDialer.Dial(r.config.BaseURL, header)
	if err != nil {
		r.connMutex.Unlock()
		return platformerrors.Wrap(platformerrors.KindASR, "dashscope.Start", "连接识别服务失败", err)
	}

	r.conn = conn
	r.taskID = uuid.NewString()
	r.started = make(chan struct{})
	r.finished = make(chan struct{})
	r.readDone = make(chan struct{})
	r.closed = false
	r.connMutex.Unlock()

	go r.readLoop(conn)

	runTask := map[string]interface{}{
		"header": map[string]interface{}{
			"action":    actionRunTask,
			"task_id":   r.taskID,
			"streaming": "duplex",
		},
		"payload": map[string]interface{}{
			"task_group": "audio",
			"task":       "asr",
			"function":   "recognition",
			"model":      r.config.Model,
			"parameters": map[string]interface{}{
				"format":      r.config.Format,
				"sample_rate": r.config.SampleRate,
			},
			"input": map[string]interface{}{},
		},
	}
	if err := r.writeJSON(runTask); err != nil {
		r.teardown()
		return platformerrors.Wrap(platformerrors.KindASR, "dashscope.Start", "发送run-task失败", err)
	}

	select {
	case <-r.started:
		r.logger.InfoTag("ASR", "识别任务%s已启动", r.taskID)
		return nil
	case <-r.readDone:
		r.teardown()
		return platformerrors.New(platformerrors.KindASR, "dashscope.Start", "等待task-started时连接断开")
	case <-time.After(handshakeTimeout):
		r.teardown()
		return platformerrors.New(platformerrors.KindTimeout, "dashscope.Start", "等待task-started超时")
	}
}

// SendAudio 发送一帧PCM音频
func (r *Recognizer) SendAudio(data []byte) error {
	r.connMutex.Lock()
	conn := r.conn
	r.connMutex.Unlock()

	if conn == nil {
		return platformerrors.New(platformerrors.KindASR, "dashscope.SendAudio", "识别任务未启动")
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return platformerrors.Wrap(platformerrors.KindASR, "dashscope.SendAudio", "发送音频帧失败", err)
	}
	return nil
}

// Stop 结束识别任务并等待上游吐完剩余结果
func (r *Recognizer) Stop() error {
	r.connMutex.Lock()
	conn := r.conn
	finished := r.finished
	r.connMutex.Unlock()

	if conn == nil {
		return nil
	}

	finishTask := map[string]interface{}{
		"header": map[string]interface{}{
			"action":  actionFinishTask,
			"task_id": r.taskID,
		},
		"payload": map[string]interface{}{
			"input": map[string]interface{}{},
		},
	}
	if err := r.writeJSON(finishTask); err != nil {
		r.teardown()
		return platformerrors.Wrap(platformerrors.KindASR, "dashscope.Stop", "发送finish-task失败", err)
	}

	select {
	case <-finished:
	case <-time.After(handshakeTimeout):
		r.logger.WarnTag("ASR", "等待task-finished超时，强制断开")
	}
	r.teardown()
	return nil
}

// Close 释放连接
func (r *Recognizer) Close() error {
	r.teardown()
	return nil
}

func (r *Recognizer) writeJSON(v interface{}) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}

	r.connMutex.Lock()
	defer r.connMutex.Unlock()
	if r.conn == nil {
		return fmt.Errorf("connection closed")
	}
	return r.conn.WriteMessage(websocket.TextMessage, data)
}

func (r *Recognizer) teardown() {
	r.connMutex.Lock()
	defer r.connMutex.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.closed = true
}

func (r *Recognizer) readLoop(conn *websocket.Conn) {
	defer close(r.readDone)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			r.connMutex.Lock()
			closed := r.closed
			listener := r.listener
			r.connMutex.Unlock()
			if !closed && listener != nil {
				listener.OnError(platformerrors.Wrap(platformerrors.KindASR, "dashscope.readLoop", "识别连接断开", err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var event eventMessage
		if err := sonic.Unmarshal(data, &event); err != nil {
			r.logger.WarnTag("ASR", "无法解析识别事件: %v", err)
			continue
		}

		switch event.Header.Event {
		case eventTaskStarted:
			select {
			case <-r.started:
			default:
				close(r.started)
			}
		case eventResultGenerated:
			r.connMutex.Lock()
			listener := r.listener
			r.connMutex.Unlock()
			if listener != nil {
				sentence := event.Payload.Output.Sentence
				// end_time非空表示一句话结束
				listener.OnTranscript(sentence.Text, sentence.EndTime != nil)
			}
		case eventTaskFinished:
			select {
			case <-r.finished:
			default:
				close(r.finished)
			}
			return
		case eventTaskFailed:
			r.connMutex.Lock()
			listener := r.listener
			r.connMutex.Unlock()
			if listener != nil {
				listener.OnError(platformerrors.New(platformerrors.KindASR, "dashscope.readLoop",
					fmt.Sprintf("识别任务失败: %s %s", event.Header.ErrorCode, event.Header.ErrorMessage)))
			}
			return
		}
	}
}
