package devserver

import (
	"fmt"
	"math"
	"strings"

	"github.com/zhouzirui/ai-interview/client/internal/analysis/emotion"
	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
	"github.com/zhouzirui/ai-interview/client/internal/service/ai"
)

// shortAnswerRunes 少于该字数的回答会被标记为过于简短
const shortAnswerRunes = 15

// EmptyReport 候选人没有有效回答时的报告
func EmptyReport() *interview.Report {
	scores := make(map[string]float64, len(ai.Dimensions))
	for _, dim := range ai.Dimensions {
		scores[dim] = 0
	}
	return &interview.Report{
		Scores: scores,
		Radar:  make([]float64, len(ai.Dimensions)),
		KeyIssues: []interview.KeyIssue{
			{Question: "面试参与度", Issue: "候选人未参与面试或未提供有效回答"},
		},
		Suggestions: []string{
			"建议候选人积极参与面试",
			"准备自我介绍和项目经验",
			"练习语言表达和逻辑思维",
		},
		MultimodalAnalysis: map[string]string{
			"audio":  "无语音数据",
			"video":  "无视频数据",
			"text":   "无文本回答内容",
			"resume": "无简历数据",
		},
		Summary: "候选人未参与面试，无法进行有效评测。建议重新安排面试或检查系统设置。",
	}
}

// HeuristicReport scores answers by coverage, length and tone. It is a
// stand-in for real evaluation.
func HeuristicReport(req interview.ReportRequest) *interview.Report {
	var answered, totalRunes int
	tones := make(map[emotion.Label]int)
	var issues []interview.KeyIssue

	for _, entry := range req.History {
		answer := strings.TrimSpace(entry.Answer)
		if answer == "" {
			issues = append(issues, interview.KeyIssue{Question: entry.Question, Issue: "未作答"})
			continue
		}
		answered++
		n := len([]rune(answer))
		totalRunes += n
		tones[emotion.Analyze(answer).Tone]++
		if n < shortAnswerRunes {
			issues = append(issues, interview.KeyIssue{Question: entry.Question, Issue: "回答过于简短，缺少具体细节"})
		}
	}
	if answered == 0 {
		return EmptyReport()
	}

	coverage := float64(answered) / float64(len(req.History))
	avg := totalRunes / answered
	base := 40 + 40*coverage
	lengthBonus := math.Min(20, float64(avg)/5)

	raw := map[string]float64{
		"专业知识水平": base + lengthBonus,
		"技能匹配度":  base + lengthBonus/2,
		"语言表达能力": base + lengthBonus - 5*float64(tones[emotion.Hesitant]),
		"逻辑思维能力": base + lengthBonus/2 + 5*float64(tones[emotion.Calm]),
		"创新能力":   base + 5*float64(tones[emotion.Positive]),
		"应变抗压能力": base + 5*float64(tones[emotion.Confident]) - 5*float64(tones[emotion.Nervous]),
	}

	rep := &interview.Report{Scores: make(map[string]float64, len(raw))}
	for _, dim := range ai.Dimensions {
		score := math.Round(math.Max(0, math.Min(100, raw[dim])))
		rep.Scores[dim] = score
		rep.Radar = append(rep.Radar, score)
	}

	rep.KeyIssues = issues
	rep.Suggestions = []string{"多用数据和案例支撑观点"}
	if tones[emotion.Hesitant] > 0 {
		rep.Suggestions = append(rep.Suggestions, "减少口头禅，回答前先组织思路")
	}
	if len(issues) > 0 {
		rep.Suggestions = append(rep.Suggestions, "对每道题给出完整、具体的回答")
	}

	rep.MultimodalAnalysis = map[string]string{
		"text":   fmt.Sprintf("共%d题，作答%d题，平均回答长度%d字", len(req.History), answered, avg),
		"audio":  orDefault(req.AudioAnalysis, "无语音分析数据"),
		"video":  orDefault(req.VideoAnalysis, "无视频数据"),
		"resume": orDefault(req.ResumeText, "无简历数据"),
	}
	rep.Summary = fmt.Sprintf("候选人完成了%d道题中的%d道，整体表现%s。", len(req.History), answered, grade(rep.Radar))
	return rep
}

func grade(radar []float64) string {
	var sum float64
	for _, v := range radar {
		sum += v
	}
	switch avg := sum / float64(len(radar)); {
	case avg >= 80:
		return "良好"
	case avg >= 60:
		return "中等"
	default:
		return "有待提升"
	}
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
