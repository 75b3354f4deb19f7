package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"

	platformerrors "cuishou-server-go/internal/platform/errors"
)

type envelope struct {
	Type string `json:"type"`
}

// DecodeInbound 解析客户端消息并在边界完成校验。
// 未知类型和缺失必填字段都在这里拒绝，后续代码不再做类型探测。
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindProtocol, "protocol.DecodeInbound", "消息不是合法JSON", err)
	}

	switch env.Type {
	case TypeStartStreamingASR:
		var msg StartStreamingASR
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, wrapDecode(env.Type, err)
		}
		return msg, nil
	case TypeSendOpusChunk:
		var msg SendOpusChunk
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, wrapDecode(env.Type, err)
		}
		if msg.AudioData == "" {
			return nil, platformerrors.New(platformerrors.KindProtocol, "protocol.DecodeInbound", "send_opus_chunk缺少audio_data")
		}
		return msg, nil
	case TypeStopStreamingASR:
		return StopStreamingASR{}, nil
	case TypeChatMessage:
		var msg ChatMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, wrapDecode(env.Type, err)
		}
		if msg.Text == "" && msg.Intent != IntentAgentGreeting {
			return nil, platformerrors.New(platformerrors.KindProtocol, "protocol.DecodeInbound", "chat_message缺少text")
		}
		return msg, nil
	case "":
		return nil, platformerrors.New(platformerrors.KindProtocol, "protocol.DecodeInbound", "消息缺少type字段")
	default:
		return nil, platformerrors.New(platformerrors.KindProtocol, "protocol.DecodeInbound",
			fmt.Sprintf("未知的消息类型: %s", env.Type))
	}
}

// EncodeOutbound 序列化服务端消息，自动注入type字段
func EncodeOutbound(msg Outbound) ([]byte, error) {
	raw, err := sonic.Marshal(msg)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindProtocol, "protocol.EncodeOutbound", "序列化消息失败", err)
	}

	// 在对象头部插入type字段
	typed := make([]byte, 0, len(raw)+len(msg.outboundType())+12)
	typed = append(typed, []byte(fmt.Sprintf(`{"type":%q`, msg.outboundType()))...)
	if len(raw) > 2 {
		typed = append(typed, ',')
		typed = append(typed, raw[1:]...)
	} else {
		typed = append(typed, '}')
	}
	return typed, nil
}

// ValidatePCMChunk 出站前校验下行音频块的约束
func ValidatePCMChunk(c PCMChunk) error {
	if c.ChunkIndex < 1 {
		return platformerrors.New(platformerrors.KindProtocol, "protocol.ValidatePCMChunk",
			fmt.Sprintf("chunk_index必须从1开始: %d", c.ChunkIndex))
	}
	if c.SegmentIndex < 0 {
		return platformerrors.New(platformerrors.KindProtocol, "protocol.ValidatePCMChunk",
			fmt.Sprintf("segment_index非法: %d", c.SegmentIndex))
	}
	if c.PCMData == "" {
		return platformerrors.New(platformerrors.KindProtocol, "protocol.ValidatePCMChunk", "pcm_data为空")
	}
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return platformerrors.New(platformerrors.KindProtocol, "protocol.ValidatePCMChunk", "音频参数非法")
	}
	return nil
}

func wrapDecode(msgType string, err error) error {
	return platformerrors.Wrap(platformerrors.KindProtocol, "protocol.DecodeInbound",
		fmt.Sprintf("解析%s失败", msgType), err)
}
