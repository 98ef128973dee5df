package devserver

import (
	"context"
	"strings"
	"unicode"

	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
)

const (
	// Greeting 开场白
	Greeting = "您好，欢迎参加本次面试。请先进行简单的自我介绍。"
	// EndMessage 面试结束语
	EndMessage = "面试已结束，感谢您的参与！"

	feedbackRecorded = "回答已记录，请继续"
	feedbackEmpty    = "未检测到有效回答，请再试一次"
)

// DefaultQuestions 未配置题目且没有大模型时使用
var DefaultQuestions = []string{
	"请介绍一个你最有成就感的项目，你在其中负责什么？",
	"项目中遇到过最棘手的技术问题是什么？你是如何解决的？",
	"如果上线后出现严重故障，你会如何排查和处理？",
}

// DefaultAnswers 模拟识别器按轮次使用的回答
var DefaultAnswers = []string{
	"我叫张三，有三年后端开发经验，主要使用Go语言开发高并发服务。",
	"我主导设计了公司的消息推送系统，上线后推送延迟降低了一半。",
	"当时遇到了缓存雪崩的问题，首先做了限流，然后引入了多级缓存。",
	"我会先看监控和日志定位影响范围，然后回滚或者降级，最后复盘。",
}

// Interviewer decides the next question and cleans up answers.
type Interviewer interface {
	NextQuestion(ctx context.Context, history []interview.HistoryEntry) (question string, done bool, err error)
	PolishAnswer(ctx context.Context, raw string) (string, error)
}

// Evaluator scores a finished interview.
type Evaluator interface {
	Evaluate(ctx context.Context, req interview.ReportRequest) (*interview.Report, error)
}

// ScriptedInterviewer asks a fixed list of questions after the greeting.
type ScriptedInterviewer struct {
	Questions []string
}

func (s ScriptedInterviewer) NextQuestion(_ context.Context, history []interview.HistoryEntry) (string, bool, error) {
	idx := len(history) - 1
	if idx < 0 || idx >= len(s.Questions) {
		return "", true, nil
	}
	return s.Questions[idx], false, nil
}

var fillers = []string{"嗯，", "呃，", "啊，", "嗯", "呃"}

// PolishAnswer drops filler words and closes the sentence.
func (ScriptedInterviewer) PolishAnswer(_ context.Context, raw string) (string, error) {
	text := raw
	for _, f := range fillers {
		text = strings.ReplaceAll(text, f, "")
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "", nil
	}
	runes := []rune(text)
	if !unicode.IsPunct(runes[len(runes)-1]) {
		text += "。"
	}
	return text, nil
}
