package session

import (
	"errors"
	"fmt"

	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
)

// State 面试轮次状态
type State int

const (
	Idle State = iota
	Posed
	Answering
	FeedbackPending
	ForceStopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Posed:
		return "posed"
	case Answering:
		return "answering"
	case FeedbackPending:
		return "feedback_pending"
	case ForceStopped:
		return "force_stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrInvalidTransition 当前状态不允许该操作，状态保持不变。
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrEmptyAnswer 本轮没有识别到任何语音，重新开放作答。
	ErrEmptyAnswer = errors.New("no speech detected")
)

// Machine is the pure turn lifecycle. It performs no I/O; the orchestrator
// applies side effects based on what each method returns.
type Machine struct {
	state         State
	question      string
	answerEnabled bool
	// answered 当前问题已经收到反馈，防止同一题重复提交
	answered bool
	turn     *interview.Turn
	// pendingQuestion 等待反馈期间收到的下一题
	pendingQuestion *string
	history         []interview.HistoryEntry
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Question returns the question currently posed, if any.
func (m *Machine) Question() string { return m.question }

// AnswerEnabled reports the Posed(answer-enabled) sub-state.
func (m *Machine) AnswerEnabled() bool { return m.state == Posed && m.answerEnabled }

// Turn returns the active turn, nil outside Answering/FeedbackPending.
func (m *Machine) Turn() *interview.Turn { return m.turn }

// History returns a copy of the completed turns.
func (m *Machine) History() []interview.HistoryEntry {
	return append([]interview.HistoryEntry(nil), m.history...)
}

// Start enters Posed from Idle or ForceStopped, discarding all prior state.
func (m *Machine) Start() error {
	if m.state != Idle && m.state != ForceStopped {
		return fmt.Errorf("%w: start while %s", ErrInvalidTransition, m.state)
	}
	*m = Machine{state: Posed}
	return nil
}

// Abort returns to Idle after a start that never got a question.
func (m *Machine) Abort() {
	*m = Machine{state: Idle}
}

// PoseQuestion handles ai_question. In FeedbackPending the question is
// held until feedback arrives; in Answering the active turn is abandoned
// and abandoned is true.
func (m *Machine) PoseQuestion(text string) (abandoned bool, err error) {
	switch m.state {
	case Posed:
		m.setQuestion(text)
		return false, nil
	case Answering:
		m.turn = nil
		m.state = Posed
		m.setQuestion(text)
		return true, nil
	case FeedbackPending:
		m.pendingQuestion = &text
		return false, nil
	default:
		return false, fmt.Errorf("%w: question while %s", ErrInvalidTransition, m.state)
	}
}

func (m *Machine) setQuestion(text string) {
	m.question = text
	m.answerEnabled = false
	m.answered = false
	m.pendingQuestion = nil
}

// EnableAnswer handles can_answer; only meaningful in Posed once a
// question has arrived.
func (m *Machine) EnableAnswer() error {
	if m.state != Posed {
		return fmt.Errorf("%w: can_answer while %s", ErrInvalidTransition, m.state)
	}
	if m.question == "" {
		return fmt.Errorf("%w: can_answer before any question", ErrInvalidTransition)
	}
	m.answerEnabled = true
	return nil
}

// StartAnswer opens a new turn. It requires Posed(answer-enabled) and that
// the current question has not already produced feedback.
func (m *Machine) StartAnswer() error {
	if m.state != Posed || !m.answerEnabled {
		return fmt.Errorf("%w: start answer while %s (answer enabled=%t)", ErrInvalidTransition, m.state, m.answerEnabled)
	}
	if m.answered {
		return fmt.Errorf("%w: question already answered", ErrInvalidTransition)
	}
	m.turn = &interview.Turn{Question: m.question}
	m.state = Answering
	return nil
}

// CancelAnswer undoes StartAnswer when capture could not begin.
func (m *Machine) CancelAnswer() {
	if m.state != Answering {
		return
	}
	m.turn = nil
	m.state = Posed
	m.answerEnabled = true
}

// EndAnswer closes the turn with the reconciled transcript. An empty
// transcript re-offers Posed(answer-enabled) and returns ErrEmptyAnswer.
func (m *Machine) EndAnswer(transcript string) error {
	if m.state != Answering {
		return fmt.Errorf("%w: end answer while %s", ErrInvalidTransition, m.state)
	}
	if transcript == "" {
		m.turn = nil
		m.state = Posed
		m.answerEnabled = true
		return ErrEmptyAnswer
	}
	m.turn.StableTranscript = transcript
	m.turn.FinalAnswer = &transcript
	m.answerEnabled = false
	m.state = FeedbackPending
	return nil
}

// Feedback completes the turn. The entry is bound to the turn's own
// question; processed replaces the raw answer when present.
func (m *Machine) Feedback(processed string) (interview.HistoryEntry, error) {
	if m.state != FeedbackPending || m.turn == nil {
		return interview.HistoryEntry{}, fmt.Errorf("%w: feedback while %s", ErrInvalidTransition, m.state)
	}

	answer := processed
	if answer == "" {
		answer = m.turn.AnswerText()
	}
	entry := interview.HistoryEntry{Question: m.turn.Question, Answer: answer}
	m.history = append(m.history, entry)

	m.turn = nil
	m.state = Posed
	m.answerEnabled = false
	m.answered = true
	if m.pendingQuestion != nil {
		m.setQuestion(*m.pendingQuestion)
	}
	return entry, nil
}

// ForceStop is valid from any state and keeps history.
func (m *Machine) ForceStop() {
	m.state = ForceStopped
	m.question = ""
	m.answerEnabled = false
	m.answered = false
	m.turn = nil
	m.pendingQuestion = nil
}

// Stop is the user-requested end of an active interview.
func (m *Machine) Stop() error {
	switch m.state {
	case Posed, Answering, FeedbackPending:
		m.ForceStop()
		return nil
	default:
		return fmt.Errorf("%w: stop while %s", ErrInvalidTransition, m.state)
	}
}
