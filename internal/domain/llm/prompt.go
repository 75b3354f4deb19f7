package llm

import (
	"fmt"
	"strings"
)

// PromptContext 构建话术所需的客户档案
type PromptContext struct {
	Name             string
	Balance          int
	DaysOverdue      int
	PreviousContacts int
	RiskLevel        string
	Scenario         string
}

// HistoryEntry 通话记录中的一条发言
type HistoryEntry struct {
	Role string // user / assistant
	Text string
}

var riskLevelCN = map[string]string{
	"low":    "低",
	"medium": "中等",
	"high":   "高",
}

var scenarioGuidance = map[string]string{
	"overdue_payment":    "聚焦逾期本金的核实确认，争取客户给出明确的还款时间承诺",
	"payment_plan":       "主动介绍分期方案与息费减免政策，协助客户制定可执行的还款计划",
	"difficult_customer": "客户情绪可能抵触，保持耐心，先安抚情绪再推进还款沟通",
	"first_contact":      "首次联系该客户，先核实身份再说明来意，语气克制礼貌",
}

var cnDigits = [...]string{"零", "一", "二", "三", "四", "五", "六", "七", "八", "九"}

// numberToCN 把0..99999转成汉字数字，十位为1且无更高位时读作"十"
func numberToCN(n int) string {
	if n == 0 {
		return cnDigits[0]
	}
	if n < 10 {
		return cnDigits[n]
	}

	units := []struct {
		value int
		name  string
	}{
		{10000, "万"},
		{1000, "千"},
		{100, "百"},
		{10, "十"},
		{1, ""},
	}

	var b strings.Builder
	needZero := false
	started := false
	for _, u := range units {
		d := (n / u.value) % 10
		if d == 0 {
			if started {
				needZero = true
			}
			continue
		}
		if needZero {
			b.WriteString(cnDigits[0])
			needZero = false
		}
		if d == 1 && u.value == 10 && !started {
			b.WriteString("十")
		} else {
			b.WriteString(cnDigits[d])
			b.WriteString(u.name)
		}
		started = true
	}
	return b.String()
}

// FormatChineseAmount 把元为单位的金额转成汉字读法，
// 15000读作"一万五千元"而不是"十五千元"
func FormatChineseAmount(yuan int) string {
	if yuan <= 0 {
		return "零元"
	}
	if yuan < 10000 {
		return numberToCN(yuan) + "元"
	}

	wan := yuan / 10000
	remainder := yuan % 10000
	s := numberToCN(wan) + "万"
	if remainder > 0 {
		if remainder < 1000 {
			s += cnDigits[0]
		}
		s += numberToCN(remainder)
	}
	return s + "元"
}

// BuildGreeting 生成开场问候语，不经过大模型
func BuildGreeting(customer PromptContext) string {
	name := customer.Name
	if name == "" {
		name = "客户"
	}
	return fmt.Sprintf(
		"%s您好，我是平安银行催收专员，工号888888。根据我行记录，您有一笔%s的逾期本金，逾期了%d天，已上报征信系统。请问您现在方便谈论还款安排吗？",
		name, FormatChineseAmount(customer.Balance), customer.DaysOverdue,
	)
}

// BuildCollectionPrompt 组装催收专员的系统提示，
// 话术模板来自真实催收对话记录
func BuildCollectionPrompt(customer PromptContext, history []HistoryEntry, userMessage string) string {
	name := customer.Name
	if name == "" {
		name = "客户"
	}
	risk := riskLevelCN[customer.RiskLevel]
	if risk == "" {
		risk = "中等"
	}

	var conversation strings.Builder
	conversation.WriteString("\n本次通话记录:\n")
	line := 1
	for _, entry := range history {
		role := "催收员"
		if entry.Role == "user" {
			role = "客户"
		}
		fmt.Fprintf(&conversation, "%d. %s: %s\n", line, role, entry.Text)
		line++
	}
	fmt.Fprintf(&conversation, "%d. 客户: %s\n", line, userMessage)

	var b strings.Builder
	b.WriteString("你是平安银行信用卡中心的专业催收专员，正在进行电话催收工作。\n\n")
	b.WriteString("客户档案信息:\n")
	fmt.Fprintf(&b, "- 客户姓名: %s\n", name)
	fmt.Fprintf(&b, "- 逾期本金: %s\n", FormatChineseAmount(customer.Balance))
	fmt.Fprintf(&b, "- 逾期天数: %d天\n", customer.DaysOverdue)
	fmt.Fprintf(&b, "- 联系历史: %d次\n", customer.PreviousContacts)
	fmt.Fprintf(&b, "- 风险等级: %s\n", risk)
	if guidance := scenarioGuidance[customer.Scenario]; guidance != "" {
		fmt.Fprintf(&b, "- 本次沟通要点: %s\n", guidance)
	}
	b.WriteString(conversation.String())
	b.WriteString(`
基于真实催收对话的标准话术:

【核实确认】
- "我看您这边的话在[日期]还了一笔，还了[金额]"
- "当前的话还差[具体金额]，没有还够"

【理解回应】
- "也没有人说有钱不去还这个信用卡的，我可以理解"
- "可以理解，您的还款压力确实也是挺大的"

【方案提供】
- "当前的话还是属于一个内部协商"
- "银行这边可以帮您减免一部分息费"
- "还可以帮您去撤销这个余薪案件的"

【专业用语】
- 使用"您这边的话"、"当前的话"、"是吧"等真实催收用语
- 使用"内部协商"、"余薪案件"、"全额减免方案政策"等专业术语

【重要原则】
1. 保持理解耐心的态度，避免强硬施压
2. 用具体数据建立可信度
3. 提供多种解决方案
4. 关注客户感受和实际困难
5. 使用银行专业术语增强权威性
6. 不要重复之前已经说过的话术，每次回复要推进对话

语言要求:
- 使用大陆标准普通话，避免台湾用语
- 金额表达: 15000元说成"一万五千元"，不是"十五千元"
- 回复是给语音合成朗读的，只输出口语化的纯文本，不要使用Markdown、表情或舞台说明
- 语气要专业、理解，体现人文关怀

请基于完整的通话记录，以专业催收员的身份回应客户最新的话语。`)

	return b.String()
}
