// Package report 汇总一场面试的问答、表情与语音分析，生成提交给远端的报告请求。
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
)

const (
	// NoVideoData 没有采集到任何表情帧
	NoVideoData = "无视频数据"
	// NoAudioData 语音分析不可用
	NoAudioData = "无语音分析数据"
)

var log = logrus.WithField("component", "report")

// Remote is the part of the interview service the assembler talks to.
type Remote interface {
	FetchAudioAnalysis(ctx context.Context) ([]string, error)
	SubmitReport(ctx context.Context, req interview.ReportRequest) (*interview.Report, error)
}

// Assembler builds report requests; it never scores anything itself.
type Assembler struct {
	remote Remote
}

// NewAssembler creates an assembler backed by remote.
func NewAssembler(remote Remote) *Assembler {
	return &Assembler{remote: remote}
}

// Assemble packages history, the emotion summary, the resume text and the
// remotely accumulated voice analysis into one request.
func (a *Assembler) Assemble(ctx context.Context, history []interview.HistoryEntry, emotions []interview.EmotionSample, resumeText string) interview.ReportRequest {
	// 空列表编码为 []，不是 null
	out := make([]interview.HistoryEntry, len(history))
	copy(out, history)
	return interview.ReportRequest{
		History:       out,
		VideoAnalysis: SummarizeEmotions(emotions),
		ResumeText:    resumeText,
		AudioAnalysis: a.audioAnalysis(ctx),
	}
}

// Submit sends req without retrying; failures surface as the api error.
func (a *Assembler) Submit(ctx context.Context, req interview.ReportRequest) (*interview.Report, error) {
	rep, err := a.remote.SubmitReport(ctx, req)
	if err != nil {
		return rep, fmt.Errorf("submit report: %w", err)
	}
	log.Infof("[report] submitted history=%d", len(req.History))
	return rep, nil
}

func (a *Assembler) audioAnalysis(ctx context.Context) string {
	texts, err := a.remote.FetchAudioAnalysis(ctx)
	if err != nil {
		log.Warnf("[report] fetch audio analysis failed: %v", err)
		return NoAudioData
	}
	return FormatVoiceAnalysis(texts)
}

// FormatVoiceAnalysis numbers each turn from 1: "第1轮：...\n第2轮：...".
func FormatVoiceAnalysis(texts []string) string {
	if len(texts) == 0 {
		return NoAudioData
	}
	lines := make([]string, len(texts))
	for i, text := range texts {
		lines[i] = fmt.Sprintf("第%d轮：%s", i+1, text)
	}
	return strings.Join(lines, "\n")
}

// SummarizeEmotions renders a frequency table in first-seen order,
// e.g. "happy：3次，neutral：1次。总采集帧数：4".
func SummarizeEmotions(samples []interview.EmotionSample) string {
	if len(samples) == 0 {
		return NoVideoData
	}

	counts := make(map[string]int)
	var order []string
	for _, s := range samples {
		if _, ok := counts[s.Label]; !ok {
			order = append(order, s.Label)
		}
		counts[s.Label]++
	}

	parts := make([]string, len(order))
	for i, label := range order {
		parts[i] = fmt.Sprintf("%s：%d次", label, counts[label])
	}
	return fmt.Sprintf("%s。总采集帧数：%d", strings.Join(parts, "，"), len(samples))
}
