package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
)

func TestStartAndStop(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/api/interview/start":
			w.Write([]byte(`{"question":"您好，欢迎参加本次面试。"}`))
		case "/api/interview/stop":
			w.Write([]byte(`{"msg":"面试已结束"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second, nil)
	resp, err := client.StartInterview(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if resp.Question != "您好，欢迎参加本次面试。" {
		t.Fatalf("unexpected greeting %q", resp.Question)
	}
	if err := client.StopInterview(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(calls) != 2 || calls[0] != "POST /api/interview/start" || calls[1] != "POST /api/interview/stop" {
		t.Fatalf("unexpected calls: %v", calls)
	}
}

func TestNon2xxIsRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, time.Second, nil).StopInterview(context.Background())
	if !errors.Is(err, ErrRemoteRequestFailed) {
		t.Fatalf("expected ErrRemoteRequestFailed, got %v", err)
	}
}

func TestUnreachableIsRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second, nil).FetchAudioAnalysis(context.Background())
	if !errors.Is(err, ErrRemoteRequestFailed) {
		t.Fatalf("expected ErrRemoteRequestFailed, got %v", err)
	}
}

func TestSubmitReport(t *testing.T) {
	var got interview.ReportRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/interview/result" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"scores":{"逻辑思维能力":80},"key_issues":[{"question":"Q1","issue":"太短"}],"summary":"ok"}`))
	}))
	defer srv.Close()

	req := interview.ReportRequest{
		History:       []interview.HistoryEntry{{Question: "Q1", Answer: "A1"}},
		VideoAnalysis: "无视频数据",
		ResumeText:    "resume",
		AudioAnalysis: "第1轮：平稳",
	}
	report, err := NewClient(srv.URL, time.Second, nil).SubmitReport(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if report.Scores["逻辑思维能力"] != 80 || report.Summary != "ok" || len(report.KeyIssues) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(got.History) != 1 || got.AudioAnalysis != "第1轮：平稳" || got.VideoAnalysis != "无视频数据" {
		t.Fatalf("server saw unexpected body: %+v", got)
	}
}

func TestSubmitReportErrorMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"模型调用失败"}`))
	}))
	defer srv.Close()

	report, err := NewClient(srv.URL, time.Second, nil).SubmitReport(context.Background(), interview.ReportRequest{})
	if !errors.Is(err, ErrRemoteRequestFailed) {
		t.Fatalf("expected ErrRemoteRequestFailed, got %v", err)
	}
	if report == nil || report.Error != "模型调用失败" {
		t.Fatalf("expected error marker in report, got %+v", report)
	}
}

func TestFetchAudioAnalysisAndFaceEmotion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/get_audio_analysis":
			w.Write([]byte(`{"audio_analysis":["平稳","略快"]}`))
		case "/api/face_emotion":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["image"] != "data:image/jpeg;base64,AAAA" {
				http.Error(w, "bad image", http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"emotion":"happy"}`))
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	texts, err := client.FetchAudioAnalysis(context.Background())
	if err != nil || len(texts) != 2 || texts[1] != "略快" {
		t.Fatalf("unexpected analysis %v err=%v", texts, err)
	}
	label, err := client.DetectFaceEmotion(context.Background(), "data:image/jpeg;base64,AAAA")
	if err != nil || label != "happy" {
		t.Fatalf("unexpected emotion %q err=%v", label, err)
	}
}
