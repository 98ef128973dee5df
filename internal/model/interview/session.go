package interview

import "time"

// HistoryEntry 一轮已完成的问答，answer 为服务端整理后的回答。
type HistoryEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Session captures the client-side view of one interview.
type Session struct {
	SID             string         `json:"sid"`
	CurrentQuestion string         `json:"currentQuestion,omitempty"`
	History         []HistoryEntry `json:"history"`
	StartedAt       time.Time      `json:"startedAt,omitempty"`
}

// Turn 当前进行中的一轮作答。
type Turn struct {
	Question               string
	RawTranscriptFragments []string
	StableTranscript       string
	FinalAnswer            *string
}

// AnswerText returns the submitted answer or an empty string.
func (t *Turn) AnswerText() string {
	if t == nil || t.FinalAnswer == nil {
		return ""
	}
	return *t.FinalAnswer
}

// EmotionSample is one facial-emotion label, ordered by collection.
type EmotionSample struct {
	Label string `json:"label"`
}

// VoiceAnalysisRecord 单轮语音分析文本，由服务端计算。
type VoiceAnalysisRecord struct {
	Text string `json:"text"`
}
