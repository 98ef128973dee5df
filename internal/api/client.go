// Package api 封装远端面试服务的 REST 接口。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/ai-interview/client/internal/metrics"
	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
)

// ErrRemoteRequestFailed 远端请求失败，由用户手动重试。
var ErrRemoteRequestFailed = errors.New("remote request failed")

var log = logrus.WithField("component", "api")

// Client calls the interview service over HTTP. No call is retried.
type Client struct {
	baseURL string
	c       *http.Client
	metrics *metrics.Metrics
}

// NewClient creates a client; m may be nil.
func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		c:       &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// StartResponse 服务端对 start 的应答，question 为开场白。
type StartResponse struct {
	Question string `json:"question,omitempty"`
}

// StartInterview calls POST /api/interview/start.
func (h *Client) StartInterview(ctx context.Context) (*StartResponse, error) {
	var out StartResponse
	if err := h.do(ctx, "start", http.MethodPost, "/api/interview/start", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopInterview calls POST /api/interview/stop.
func (h *Client) StopInterview(ctx context.Context) error {
	return h.do(ctx, "stop", http.MethodPost, "/api/interview/stop", struct{}{}, nil)
}

type audioAnalysisResp struct {
	AudioAnalysis []string `json:"audio_analysis"`
}

// FetchAudioAnalysis returns the per-turn voice analysis texts in turn order.
func (h *Client) FetchAudioAnalysis(ctx context.Context) ([]string, error) {
	var out audioAnalysisResp
	if err := h.do(ctx, "audio_analysis", http.MethodGet, "/api/get_audio_analysis", nil, &out); err != nil {
		return nil, err
	}
	return out.AudioAnalysis, nil
}

// SubmitReport posts the assembled request to /api/interview/result.
// A body carrying "error" is treated as a failed request.
func (h *Client) SubmitReport(ctx context.Context, req interview.ReportRequest) (*interview.Report, error) {
	var out interview.Report
	if err := h.do(ctx, "result", http.MethodPost, "/api/interview/result", req, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return &out, fmt.Errorf("%w: report: %s", ErrRemoteRequestFailed, out.Error)
	}
	return &out, nil
}

type faceEmotionReq struct {
	Image string `json:"image"`
}

type faceEmotionResp struct {
	Emotion string `json:"emotion"`
}

// DetectFaceEmotion posts a data URL frame and returns the dominant label.
func (h *Client) DetectFaceEmotion(ctx context.Context, dataURL string) (string, error) {
	var out faceEmotionResp
	if err := h.do(ctx, "face_emotion", http.MethodPost, "/api/face_emotion", faceEmotionReq{Image: dataURL}, &out); err != nil {
		return "", err
	}
	return out.Emotion, nil
}

func (h *Client) do(ctx context.Context, endpoint, method, path string, body, out any) (err error) {
	started := time.Now()
	defer func() {
		h.metrics.RecordRemoteRequest(endpoint, err, time.Since(started).Seconds())
		if err != nil {
			log.Warnf("[api] %s %s failed: %v", method, path, err)
		}
	}()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s encode: %w", endpoint, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRemoteRequestFailed, endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.c.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRemoteRequestFailed, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s: %s", ErrRemoteRequestFailed, endpoint, resp.Status, strings.TrimSpace(string(b)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s decode: %v", ErrRemoteRequestFailed, endpoint, err)
	}
	return nil
}
