package llm

import "strings"

// 遇到这些标点就可以把累积的文本交给语音合成
var sentenceDelimiters = []rune{'。', '！', '？', '；', '：', '\n', '.', '!', '?', ';', ':'}

// maxSentenceRunes 超过该长度即使没有标点也强制断句
const maxSentenceRunes = 50

// SentenceSplitter 把流式增量切成可朗读的句子。
// 大模型按token吐字，语音合成按句消费，中间需要断句缓冲。
type SentenceSplitter struct {
	pending []rune
}

// NewSentenceSplitter 创建断句器
func NewSentenceSplitter() *SentenceSplitter {
	return &SentenceSplitter{}
}

// Push 追加一段增量，返回其中完整的句子（可能为空）
func (s *SentenceSplitter) Push(delta string) []string {
	if delta == "" {
		return nil
	}
	s.pending = append(s.pending, []rune(delta)...)

	var sentences []string
	start := 0
	for i := start; i < len(s.pending); i++ {
		if isSentenceDelimiter(s.pending[i]) || i-start+1 >= maxSentenceRunes {
			sentence := strings.TrimSpace(string(s.pending[start : i+1]))
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			start = i + 1
		}
	}
	s.pending = s.pending[start:]
	return sentences
}

// Flush 取出剩余未断句的文本，流结束时调用
func (s *SentenceSplitter) Flush() string {
	sentence := strings.TrimSpace(string(s.pending))
	s.pending = s.pending[:0]
	return sentence
}

func isSentenceDelimiter(r rune) bool {
	for _, d := range sentenceDelimiters {
		if r == d {
			return true
		}
	}
	return false
}
