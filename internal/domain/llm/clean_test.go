package llm

import "testing"

func TestCleanForTTS(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"**请您**尽快还款", "请您尽快还款"},
		{"# 还款提醒\n请尽快处理", "还款提醒。请尽快处理"},
		{"好的😊我理解您的难处", "好的我理解您的难处"},
		{"（叹气）那我们看看分期方案", "那我们看看分期方案"},
		{"[温和地]您这边的话方便吗", "您这边的话方便吗"},
		{"`内部协商`可以减免息费", "内部协商可以减免息费"},
		{"  已经处理好了  ", "已经处理好了"},
	}

	for _, c := range cases {
		got := CleanForTTS(c.in)
		if got != c.want {
			t.Fatalf("CleanForTTS(%q) = %q, 期望 %q", c.in, got, c.want)
		}
	}
}

func TestSentenceSplitterStreaming(t *testing.T) {
	s := NewSentenceSplitter()

	if got := s.Push("您好，我是"); got != nil {
		t.Fatalf("未断句前不应输出: %v", got)
	}
	got := s.Push("催收专员。请问您")
	if len(got) != 1 || got[0] != "您好，我是催收专员。" {
		t.Fatalf("句号处应断句: %v", got)
	}
	got = s.Push("方便吗？好的！")
	if len(got) != 2 || got[0] != "请问您方便吗？" || got[1] != "好的！" {
		t.Fatalf("多个标点应切出多句: %v", got)
	}
	if rest := s.Flush(); rest != "" {
		t.Fatalf("已全部断句，Flush应为空: %q", rest)
	}
}

func TestSentenceSplitterFlushRemainder(t *testing.T) {
	s := NewSentenceSplitter()
	s.Push("那我们就这样约定")
	if rest := s.Flush(); rest != "那我们就这样约定" {
		t.Fatalf("Flush应取出剩余文本: %q", rest)
	}
	if rest := s.Flush(); rest != "" {
		t.Fatalf("二次Flush应为空: %q", rest)
	}
}

func TestSentenceSplitterForcedSplit(t *testing.T) {
	s := NewSentenceSplitter()
	long := ""
	for i := 0; i < 60; i++ {
		long += "还"
	}
	got := s.Push(long)
	if len(got) != 1 {
		t.Fatalf("超长无标点文本应强制断句: %v", got)
	}
	if n := len([]rune(got[0])); n != 50 {
		t.Fatalf("强制断句长度应为50，实际 %d", n)
	}
}
