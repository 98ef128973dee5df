package control

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/ai-interview/client/internal/api"
	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
	"github.com/zhouzirui/ai-interview/client/internal/session"
)

type fakeSession struct {
	startErr  error
	stopErr   error
	answerErr error
	endErr    error
	snap      session.Snapshot
	history   []interview.HistoryEntry
	updates   chan session.Update
}

func (f *fakeSession) Start(context.Context) error       { return f.startErr }
func (f *fakeSession) Stop(context.Context) error        { return f.stopErr }
func (f *fakeSession) StartAnswer(context.Context) error { return f.answerErr }
func (f *fakeSession) EndAnswer() error                  { return f.endErr }
func (f *fakeSession) Snapshot() session.Snapshot        { return f.snap }

func (f *fakeSession) ReportInputs() (string, []interview.HistoryEntry, []interview.EmotionSample) {
	return "sid-1", f.history, []interview.EmotionSample{{Label: "happy"}}
}

func (f *fakeSession) Subscribe() (<-chan session.Update, func()) {
	return f.updates, func() {}
}

type fakeReporter struct {
	got       interview.ReportRequest
	report    *interview.Report
	submitErr error
}

func (f *fakeReporter) Assemble(_ context.Context, history []interview.HistoryEntry, emotions []interview.EmotionSample, resume string) interview.ReportRequest {
	f.got = interview.ReportRequest{History: history, VideoAnalysis: fmt.Sprintf("%d", len(emotions)), ResumeText: resume}
	return f.got
}

func (f *fakeReporter) Submit(context.Context, interview.ReportRequest) (*interview.Report, error) {
	return f.report, f.submitErr
}

func setupRouter(s *fakeSession, rep *fakeReporter) *chi.Mux {
	r := chi.NewRouter()
	New(s, rep).RegisterRoutes(r)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestStartReturnsSnapshot(t *testing.T) {
	s := &fakeSession{snap: session.Snapshot{Session: interview.Session{SID: "sid-1"}, State: "posed"}}
	resp := post(setupRouter(s, &fakeReporter{}), "/session/start", "")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var snap session.Snapshot
	json.NewDecoder(resp.Body).Decode(&snap)
	if snap.SID != "sid-1" || snap.State != "posed" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		setup  func(*fakeSession)
		status int
	}{
		{"invalid transition", "/answer/start", func(s *fakeSession) {
			s.answerErr = fmt.Errorf("%w: feedback pending", session.ErrInvalidTransition)
		}, http.StatusConflict},
		{"empty answer", "/answer/end", func(s *fakeSession) { s.endErr = session.ErrEmptyAnswer }, http.StatusUnprocessableEntity},
		{"remote failure", "/session/stop", func(s *fakeSession) {
			s.stopErr = fmt.Errorf("%w: 500", api.ErrRemoteRequestFailed)
		}, http.StatusBadGateway},
		{"unknown", "/session/start", func(s *fakeSession) { s.startErr = errors.New("boom") }, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &fakeSession{}
			tc.setup(s)
			resp := post(setupRouter(s, &fakeReporter{}), tc.path, "")
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestReportAssemblesFromSession(t *testing.T) {
	s := &fakeSession{history: []interview.HistoryEntry{{Question: "Q1", Answer: "A1"}}}
	rep := &fakeReporter{report: &interview.Report{Summary: "表现良好"}}

	resp := post(setupRouter(s, rep), "/report", `{"resume_text":"三年经验"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if rep.got.ResumeText != "三年经验" || len(rep.got.History) != 1 || rep.got.VideoAnalysis != "1" {
		t.Fatalf("unexpected assembled request %+v", rep.got)
	}
	if !strings.Contains(resp.Body.String(), "表现良好") {
		t.Fatalf("report not returned: %s", resp.Body.String())
	}
}

func TestReportRemoteFailure(t *testing.T) {
	rep := &fakeReporter{submitErr: fmt.Errorf("submit report: %w", api.ErrRemoteRequestFailed)}
	resp := post(setupRouter(&fakeSession{}, rep), "/report", "")
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
}

func TestReportRejectsBadBody(t *testing.T) {
	resp := post(setupRouter(&fakeSession{}, &fakeReporter{}), "/report", "{")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestEventsStreamUpdates(t *testing.T) {
	s := &fakeSession{updates: make(chan session.Update, 1), snap: session.Snapshot{State: "idle"}}
	srv := httptest.NewServer(setupRouter(s, &fakeReporter{}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer resp.Body.Close()

	s.updates <- session.Update{Type: "notice", Notice: &session.Notice{Kind: session.KindEmptyAnswer}}

	reader := bufio.NewReader(resp.Body)
	var events []string
	for len(events) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimSpace(strings.TrimPrefix(line, "event: ")))
		}
	}
	if events[0] != "state" || events[1] != "notice" {
		t.Fatalf("unexpected events %v", events)
	}
}
