package session

import (
	"fmt"

	"github.com/zhouzirui/ai-interview/client/internal/transport"
)

// Event is an inbound server signal after decoding. The orchestrator
// consumes these on its loop; nothing else mutates session state.
type Event interface {
	event()
}

// QuestionPosed ai_question
type QuestionPosed struct{ Text string }

// AnswerEnabled can_answer
type AnswerEnabled struct{}

// TranscriptFragment asr_result; Feedback 为识别端附带的提示，如自动结束识别。
type TranscriptFragment struct {
	Text     string
	IsFinal  bool
	Feedback string
}

// FeedbackReceived ai_feedback
type FeedbackReceived struct {
	Text            string
	ProcessedAnswer string
	AudioAnalysis   string
}

// AnswerAnalysis answer_result
type AnswerAnalysis struct{ AudioAnalysis string }

// ForceStoppedEvent interview_force_stop
type ForceStoppedEvent struct{}

// TransportLost is raised when the connection drops unexpectedly.
type TransportLost struct{ Err error }

func (QuestionPosed) event()      {}
func (AnswerEnabled) event()      {}
func (TranscriptFragment) event() {}
func (FeedbackReceived) event()   {}
func (AnswerAnalysis) event()     {}
func (ForceStoppedEvent) event()  {}
func (TransportLost) event()      {}

// inboundEvents 订阅的下行事件
var inboundEvents = []string{
	transport.EventAIQuestion,
	transport.EventCanAnswer,
	transport.EventASRResult,
	transport.EventAIFeedback,
	transport.EventAnswerResult,
	transport.EventForceStop,
}

// DecodeEvent maps a wire message to its Event.
func DecodeEvent(msg transport.Message) (Event, error) {
	switch msg.Event {
	case transport.EventAIQuestion:
		var p transport.TextPayload
		if err := msg.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		return QuestionPosed{Text: p.Text}, nil
	case transport.EventCanAnswer:
		return AnswerEnabled{}, nil
	case transport.EventASRResult:
		var p transport.ASRPayload
		if err := msg.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		return TranscriptFragment{Text: p.Text, IsFinal: p.IsFinal, Feedback: p.Feedback}, nil
	case transport.EventAIFeedback:
		var p transport.FeedbackPayload
		if err := msg.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		return FeedbackReceived{Text: p.Text, ProcessedAnswer: p.ProcessedAnswer, AudioAnalysis: p.AudioAnalysis}, nil
	case transport.EventAnswerResult:
		var p transport.FeedbackPayload
		if err := msg.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		return AnswerAnalysis{AudioAnalysis: p.AudioAnalysis}, nil
	case transport.EventForceStop:
		return ForceStoppedEvent{}, nil
	default:
		return nil, fmt.Errorf("unknown event %q", msg.Event)
	}
}
