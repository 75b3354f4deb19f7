package llm

import (
	"regexp"
	"strings"
)

// 朗读前需要剥掉的内容，参考线上回复里实际出现过的形态
var (
	emojiRegex        = regexp.MustCompile(`[\x{1F000}-\x{1FFFF}]|[\x{2600}-\x{27BF}]|[\x{FE00}-\x{FE0F}]`)
	markdownBoldRegex = regexp.MustCompile(`\*{1,2}([^*]*)\*{1,2}`)
	markdownHeadRegex = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	markdownCodeRegex = regexp.MustCompile("`+([^`]*)`+")
	bracketRegex      = regexp.MustCompile(`\[[^\]]*\]|（[^）]*）|\([^)]*\)`)
	multiSpaceRegex   = regexp.MustCompile(`\s+`)
)

// CleanForTTS 把大模型回复清理成适合语音合成的纯文本：
// 去掉Markdown标记、表情符号和括号里的舞台说明
func CleanForTTS(text string) string {
	text = markdownHeadRegex.ReplaceAllString(text, "")
	text = markdownBoldRegex.ReplaceAllString(text, "$1")
	text = markdownCodeRegex.ReplaceAllString(text, "$1")
	text = bracketRegex.ReplaceAllString(text, "")
	text = emojiRegex.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\n", "。")
	text = multiSpaceRegex.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "。。", "。")
	return strings.TrimSpace(text)
}
