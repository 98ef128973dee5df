package interview

// ReportRequest is the body of POST /api/interview/result.
type ReportRequest struct {
	History       []HistoryEntry `json:"history"`
	VideoAnalysis string         `json:"video_analysis"`
	ResumeText    string         `json:"resume_text"`
	AudioAnalysis string         `json:"audio_analysis"`
}

// KeyIssue 报告中针对某道题的主要问题。
type KeyIssue struct {
	Question string `json:"question"`
	Issue    string `json:"issue"`
}

// Report 远端生成的多维度评测报告。
type Report struct {
	Scores             map[string]float64 `json:"scores,omitempty"`
	Radar              []float64          `json:"radar,omitempty"`
	KeyIssues          []KeyIssue         `json:"key_issues,omitempty"`
	MultimodalAnalysis map[string]string  `json:"multimodal_analysis,omitempty"`
	Suggestions        []string           `json:"suggestions,omitempty"`
	Summary            string             `json:"summary,omitempty"`
	Error              string             `json:"error,omitempty"`
}
