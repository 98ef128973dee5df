package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	m := New()
	m.RecordFrameSent(nil)
	m.RecordFrameSent(nil)
	m.RecordFrameSent(errors.New("closed"))
	m.RecordFragment("extended")
	m.RecordTransition("posed")
	m.RecordNotice("empty_answer")
	m.RecordRemoteRequest("start", nil, 0.1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"interview_audio_frames_sent_total 2",
		"interview_audio_frame_send_errors_total 1",
		`interview_asr_fragments_total{outcome="extended"} 1`,
		`interview_state_transitions_total{state="posed"} 1`,
		`interview_notices_total{kind="empty_answer"} 1`,
		`interview_remote_requests_total{endpoint="start",result="ok"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, text)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordFrameSent(nil)
	m.RecordFragment("appended")
	m.RecordTransition("idle")
	m.RecordNotice("warning")
	m.RecordAnswer("empty")
	m.RecordRemoteRequest("stop", errors.New("boom"), 1)
	m.RecordEmotionSample()
}

func TestNewUsesPrivateRegistry(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New(), New()
	a.RecordEmotionSample()
	if a.Registry() == b.Registry() {
		t.Fatal("expected separate registries")
	}
}
