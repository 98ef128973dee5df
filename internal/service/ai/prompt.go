package ai

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
)

const interviewerPrompt = `你现在是一个专业的AI面试官，正在进行一场真实的面试。请严格按照以下要求：
1. 面试目标：全面考察候选人的专业知识水平、技能匹配度、语言表达能力、逻辑思维能力、创新能力、应变抗压能力。
2. 面试流程：每轮只问一个问题，不要进行中间评价，让面试更自然流畅。
3. 问题设计：根据候选人的回答，动态生成下一个有针对性的问题，逐步深入考察各个维度。
4. 面试结束：当你认为已经充分考察了候选人的各项能力，或者已经问了足够多的问题时，主动说"面试结束"并礼貌告别。
5. 输出格式：只输出下一个问题，不要评价，不要一次性输出多个问题。`

const polishPrompt = `你是面试AI助手。请将用户的原始回答进行专业、流畅的整理，只输出整理后的面试回答，不要输出任何说明、处理过程或分析。
请严格基于用户原始回答，不得添加、虚构或编造任何未出现的信息。
输出格式示例：
整理后的面试回答：xxx`

const evaluatorPrompt = `你是一个多模态智能面试评测专家。请根据问答内容、语音分析、视频分析和简历内容，生成结构化的评测反馈报告。
请严格只输出一个JSON对象，不要有多余解释，字段如下：
scores: 对象，键为 专业知识水平、技能匹配度、语言表达能力、逻辑思维能力、创新能力、应变抗压能力，值为0-100分；
radar: 与 scores 顺序一致的六个分数组成的数组；
key_issues: 数组，每项包含 question 与 issue；
suggestions: 字符串数组；
multimodal_analysis: 对象，包含 text、audio、video、resume 四项分析；
summary: 总体评价和建议。`

// endMarker 模型认为面试可以结束时会输出这个词
const endMarker = "面试结束"

// Dimensions 评测维度，顺序与雷达图一致
var Dimensions = []string{"专业知识水平", "技能匹配度", "语言表达能力", "逻辑思维能力", "创新能力", "应变抗压能力"}

var (
	explanationSuffix = regexp.MustCompile(`[（(]说明[:：]`)
	polishedPrefix    = regexp.MustCompile(`^整理后的面试回答[:：]\s*`)
)

// cleanPolished 去掉模型附带的前缀和说明
func cleanPolished(text string) string {
	text = strings.TrimSpace(text)
	if loc := explanationSuffix.FindStringIndex(text); loc != nil {
		text = strings.TrimSpace(text[:loc[0]])
	}
	return strings.TrimSpace(polishedPrefix.ReplaceAllString(text, ""))
}

// InterviewText 按题号拼接问答内容，未作答的题目记为"未回答"。
func InterviewText(history []interview.HistoryEntry) string {
	var b strings.Builder
	for i, entry := range history {
		answer := strings.TrimSpace(entry.Answer)
		if answer == "" {
			answer = "未回答"
		}
		fmt.Fprintf(&b, "第%d题\n面试官：%s\n候选人：%s\n", i+1, entry.Question, answer)
	}
	return b.String()
}

func evaluationQuery(req interview.ReportRequest) string {
	return fmt.Sprintf("面试数据如下：\n【问答内容】：\n%s\n【语音分析】：%s\n【视频分析】：%s\n【简历内容】：%s",
		InterviewText(req.History), orNone(req.AudioAnalysis), orNone(req.VideoAnalysis), orNone(req.ResumeText))
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "无"
	}
	return s
}
