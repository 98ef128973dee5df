package transport

import "encoding/json"

// 上行事件
const (
	EventAudioStream  = "audio_stream"
	EventEndAnswer    = "end_answer"
	EventUserAnswer   = "user_answer"
	EventInterviewEnd = "interview_end"
)

// 下行事件
const (
	EventAIQuestion   = "ai_question"
	EventCanAnswer    = "can_answer"
	EventASRResult    = "asr_result"
	EventAIFeedback   = "ai_feedback"
	EventAnswerResult = "answer_result"
	EventForceStop    = "interview_force_stop"
)

// Envelope is the JSON text frame carrying one named event.
// Binary frames always carry audio_stream PCM.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is an inbound event as delivered to handlers.
type Message struct {
	Event  string
	Data   json.RawMessage
	Binary []byte
}

// Decode unmarshals the event payload into v. Empty payloads leave v untouched.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// TextPayload is used by ai_question and user_answer.
type TextPayload struct {
	Text string `json:"text"`
}

// ASRPayload is a partial or final recognition result.
type ASRPayload struct {
	Text     string `json:"text"`
	IsFinal  bool   `json:"is_final"`
	Feedback string `json:"feedback,omitempty"`
}

// FeedbackPayload carries ai_feedback and answer_result fields.
type FeedbackPayload struct {
	Text            string `json:"text,omitempty"`
	ProcessedAnswer string `json:"processed_answer,omitempty"`
	AudioAnalysis   string `json:"audio_analysis,omitempty"`
}

// EncodeEnvelope builds the text frame for an event.
func EncodeEnvelope(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}
