package session

import (
	"errors"
	"testing"
)

func posedMachine(t *testing.T, question string) *Machine {
	t.Helper()
	m := &Machine{}
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.PoseQuestion(question); err != nil {
		t.Fatalf("pose: %v", err)
	}
	return m
}

func TestEnableAnswerRequiresQuestion(t *testing.T) {
	m := &Machine{}
	m.Start()

	if err := m.EnableAnswer(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("can_answer before a question should be rejected, got %v", err)
	}
	if err := m.StartAnswer(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("answer without a question should be rejected, got %v", err)
	}
	if m.AnswerEnabled() || m.Turn() != nil {
		t.Fatalf("state changed: enabled=%t turn=%+v", m.AnswerEnabled(), m.Turn())
	}
}

func TestMachineHappyPath(t *testing.T) {
	m := posedMachine(t, "Q1")

	if err := m.StartAnswer(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("answer must wait for can_answer, got %v", err)
	}
	if err := m.EnableAnswer(); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := m.StartAnswer(); err != nil {
		t.Fatalf("start answer: %v", err)
	}
	if m.State() != Answering || m.Turn().Question != "Q1" {
		t.Fatalf("unexpected state %s turn %+v", m.State(), m.Turn())
	}
	if err := m.EndAnswer("raw answer"); err != nil {
		t.Fatalf("end answer: %v", err)
	}
	if m.State() != FeedbackPending {
		t.Fatalf("expected feedback_pending, got %s", m.State())
	}

	entry, err := m.Feedback("")
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if entry.Question != "Q1" || entry.Answer != "raw answer" {
		t.Fatalf("without processed answer the raw one is kept, got %+v", entry)
	}
	if m.State() != Posed || m.AnswerEnabled() {
		t.Fatalf("expected posed without answer enabled, got %s/%t", m.State(), m.AnswerEnabled())
	}
}

func TestMachineGuardRejectsDoubleSubmission(t *testing.T) {
	m := posedMachine(t, "Q1")
	m.EnableAnswer()
	m.StartAnswer()
	m.EndAnswer("answer")

	if err := m.StartAnswer(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start answer in feedback_pending must fail, got %v", err)
	}
	if m.State() != FeedbackPending {
		t.Fatalf("rejected action changed state to %s", m.State())
	}

	m.Feedback("answer.")
	m.EnableAnswer()
	if err := m.StartAnswer(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("same question must not be answered twice, got %v", err)
	}

	m.PoseQuestion("Q2")
	m.EnableAnswer()
	if err := m.StartAnswer(); err != nil {
		t.Fatalf("new question should be answerable: %v", err)
	}
}

func TestMachineEmptyAnswerReoffers(t *testing.T) {
	m := posedMachine(t, "Q1")
	m.EnableAnswer()
	m.StartAnswer()

	if err := m.EndAnswer(""); !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("expected ErrEmptyAnswer, got %v", err)
	}
	if !m.AnswerEnabled() || m.Turn() != nil {
		t.Fatalf("expected posed(answer-enabled) without turn, state=%s", m.State())
	}
	if err := m.StartAnswer(); err != nil {
		t.Fatalf("answer should be re-offered: %v", err)
	}
}

func TestMachineHistoryBindsToTurnQuestion(t *testing.T) {
	m := posedMachine(t, "Q1")
	m.EnableAnswer()
	m.StartAnswer()
	m.EndAnswer("A1")

	if _, err := m.PoseQuestion("Q2"); err != nil {
		t.Fatalf("question during feedback_pending should be held: %v", err)
	}
	if m.Question() != "Q1" {
		t.Fatalf("held question must not replace the current one yet, got %q", m.Question())
	}

	entry, _ := m.Feedback("A1.")
	if entry.Question != "Q1" {
		t.Fatalf("history bound to wrong question: %+v", entry)
	}
	if m.Question() != "Q2" {
		t.Fatalf("held question should apply after feedback, got %q", m.Question())
	}
}

func TestMachineQuestionAbandonsAnsweringTurn(t *testing.T) {
	m := posedMachine(t, "Q1")
	m.EnableAnswer()
	m.StartAnswer()

	abandoned, err := m.PoseQuestion("Q2")
	if err != nil || !abandoned {
		t.Fatalf("expected abandoned turn, got %t %v", abandoned, err)
	}
	if m.State() != Posed || m.Turn() != nil || m.Question() != "Q2" {
		t.Fatalf("unexpected state after abandon: %s %q", m.State(), m.Question())
	}
}

func TestMachineForceStopPreservesHistory(t *testing.T) {
	for _, target := range []State{Posed, Answering, FeedbackPending} {
		t.Run(target.String(), func(t *testing.T) {
			m := posedMachine(t, "Q1")
			m.EnableAnswer()
			m.StartAnswer()
			m.EndAnswer("A1")
			m.Feedback("A1.")
			m.PoseQuestion("Q2")
			m.EnableAnswer()
			switch target {
			case Answering:
				m.StartAnswer()
			case FeedbackPending:
				m.StartAnswer()
				m.EndAnswer("A2")
			}
			if m.State() != target {
				t.Fatalf("setup reached %s, want %s", m.State(), target)
			}

			m.ForceStop()
			if m.State() != ForceStopped || m.Turn() != nil {
				t.Fatalf("expected force_stopped, got %s", m.State())
			}
			h := m.History()
			if len(h) != 1 || h[0].Answer != "A1." {
				t.Fatalf("history changed: %+v", h)
			}
		})
	}
}

func TestMachineStartResetsAfterForceStop(t *testing.T) {
	m := posedMachine(t, "Q1")
	m.EnableAnswer()
	m.StartAnswer()
	m.EndAnswer("A1")
	m.Feedback("")
	m.ForceStop()

	if err := m.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if m.State() != Posed || len(m.History()) != 0 {
		t.Fatalf("restart must reset history, got %s %+v", m.State(), m.History())
	}
	if err := m.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start while posed must fail, got %v", err)
	}
}

func TestMachineStopRequiresActiveInterview(t *testing.T) {
	m := &Machine{}
	if err := m.Stop(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("stop from idle must fail, got %v", err)
	}
	m = posedMachine(t, "Q1")
	if err := m.Stop(); err != nil || m.State() != ForceStopped {
		t.Fatalf("stop from posed: %v state=%s", err, m.State())
	}
}
