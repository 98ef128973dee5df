package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/ai-interview/client/internal/config"
	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
)

// ErrMalformedReport 模型输出中找不到可解析的JSON报告
var ErrMalformedReport = errors.New("model returned no parsable report")

var log = logrus.WithField("component", "ai")

// Service drives the interviewer, answer polishing and report evaluation
// through one prompt chain.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the Ark chat model from cfg and compiles the chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel)
}

// NewServiceWithModel compiles the chain around an existing model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile interview chain: %w", err)
	}
	return &Service{chain: runnable}, nil
}

// NextQuestion asks the model for the next question given the answered
// turns so far. done reports that the model closed the interview.
func (s *Service) NextQuestion(ctx context.Context, history []interview.HistoryEntry) (question string, done bool, err error) {
	if len(history) == 0 {
		return "", false, fmt.Errorf("next question needs at least one answered turn")
	}
	last := history[len(history)-1]

	input := map[string]any{
		"system":  interviewerPrompt,
		"history": buildHistoryMessages(history[:len(history)-1], last.Question),
		"query":   last.Answer,
	}
	resp, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", false, fmt.Errorf("failed to run interviewer chain: %w", err)
	}

	question = strings.TrimSpace(resp.Content)
	log.Infof("[ai] next question turn=%d length=%d", len(history)+1, len([]rune(question)))
	if question == "" || strings.Contains(question, endMarker) {
		return question, true, nil
	}
	return question, false, nil
}

// PolishAnswer rewrites a raw transcript into a cleaner answer without
// adding content.
func (s *Service) PolishAnswer(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	resp, err := s.chain.Invoke(ctx, map[string]any{
		"system": polishPrompt,
		"query":  "用户原始回答：\n" + raw,
	})
	if err != nil {
		return "", fmt.Errorf("failed to polish answer: %w", err)
	}
	polished := cleanPolished(resp.Content)
	if polished == "" {
		return raw, nil
	}
	return polished, nil
}

// Evaluate produces a report from the assembled request.
func (s *Service) Evaluate(ctx context.Context, req interview.ReportRequest) (*interview.Report, error) {
	resp, err := s.chain.Invoke(ctx, map[string]any{
		"system": evaluatorPrompt,
		"query":  evaluationQuery(req),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate interview: %w", err)
	}
	return parseReport(resp.Content)
}

// parseReport extracts the outermost JSON object from the model output.
func parseReport(content string) (*interview.Report, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, ErrMalformedReport
	}
	var rep interview.Report
	if err := json.Unmarshal([]byte(content[start:end+1]), &rep); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	if len(rep.Radar) == 0 && len(rep.Scores) > 0 {
		for _, dim := range Dimensions {
			rep.Radar = append(rep.Radar, rep.Scores[dim])
		}
	}
	return &rep, nil
}

// buildHistoryMessages replays answered turns as assistant/user pairs and
// ends with the pending question.
func buildHistoryMessages(answered []interview.HistoryEntry, pending string) []*schema.Message {
	const historyLimit = 10

	history := make([]*schema.Message, 0, len(answered)*2+1)
	for _, entry := range answered {
		history = append(history, schema.AssistantMessage(entry.Question, nil))
		history = append(history, schema.UserMessage(entry.Answer))
	}
	history = append(history, schema.AssistantMessage(pending, nil))

	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	return history
}
