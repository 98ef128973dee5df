// Package devserver is a local stand-in for the remote interview service.
// It speaks the same websocket events and REST endpoints so the client can
// be exercised end to end without the real backend.
package devserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	middlewarePkg "github.com/zhouzirui/ai-interview/client/internal/middleware"
	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
	"github.com/zhouzirui/ai-interview/client/internal/service/record"
	"github.com/zhouzirui/ai-interview/client/internal/transport"
	"github.com/zhouzirui/ai-interview/client/pkg/utils"
)

var log = logrus.WithField("component", "devserver")

// Options configures the dev server.
type Options struct {
	// Interviewer 为空时使用 DefaultQuestions
	Interviewer Interviewer
	// Evaluator 可选，失败时退回启发式报告
	Evaluator Evaluator
	// Answers 模拟识别器逐轮使用的回答文本
	Answers []string
	// RunesPerFrame 每个有声帧揭示的字数
	RunesPerFrame int
	SampleRate    int
	// DumpDir 非空时把每轮音频写成 WAV
	DumpDir string
	// Speech 非空时使用流式语音识别代替预设回答
	Speech        StreamOpener
	SpeechTimeout time.Duration
}

// Server holds every connection and the state of the single running interview.
type Server struct {
	opts     Options
	records  *record.Service
	upgrader websocket.Upgrader

	mu           sync.Mutex
	conns        map[string]*conn
	active       bool
	stopped      bool
	greetPending bool
}

// New creates a dev server.
func New(opts Options) *Server {
	if opts.Interviewer == nil {
		opts.Interviewer = ScriptedInterviewer{Questions: DefaultQuestions}
	}
	if len(opts.Answers) == 0 {
		opts.Answers = DefaultAnswers
	}
	if opts.RunesPerFrame <= 0 {
		opts.RunesPerFrame = 4
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	return &Server{
		opts:    opts,
		records: record.NewService(),
		conns:   make(map[string]*conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Routes returns the HTTP handler serving /ws and the REST API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(api chi.Router) {
		api.Post("/interview/start", s.handleStart)
		api.Post("/interview/next", s.handleNext)
		api.Post("/interview/stop", s.handleStop)
		api.Post("/interview/result", s.handleResult)
		api.Get("/get_audio_analysis", s.handleAudioAnalysis)
		api.Post("/face_emotion", s.handleFaceEmotion)
	})
	return r
}

func (s *Server) newRecognizer(c *conn) Recognizer {
	if s.opts.Speech != nil {
		return newStreamRecognizer(s.opts.Speech, fmt.Sprintf("%s-%d", c.sid, c.turn), s.opts.SpeechTimeout)
	}
	return NewScriptedRecognizer(s.opts.Answers[c.turn%len(s.opts.Answers)], s.opts.RunesPerFrame)
}

func (s *Server) interviewActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Server) interviewStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		sid = uuid.NewString()
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("[ws] upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	c := &conn{id: uuid.NewString(), sid: sid, ws: ws, srv: s}
	s.register(c)
	defer s.unregister(c)
	log.Infof("[ws] new connection conn=%s sid=%s", c.id, sid)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.pingLoop(ctx)
	c.readLoop(ctx)
}

// register adds c and greets it when a start arrived before any connection.
func (s *Server) register(c *conn) {
	s.records.Open(context.Background(), c.sid)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
	if s.active && s.greetPending {
		s.greetPending = false
		s.greet(c)
	}
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.id)
	log.Infof("[ws] connection closed conn=%s sid=%s", c.id, c.sid)
}

// greet poses the opening question. Caller holds s.mu.
func (s *Server) greet(c *conn) {
	c.greeted = true
	if err := s.records.SetQuestion(context.Background(), c.sid, Greeting); err != nil {
		log.Warnf("[ws] record greeting failed sid=%s: %v", c.sid, err)
	}
	c.send(transport.EventAIQuestion, transport.TextPayload{Text: Greeting})
	c.send(transport.EventCanAnswer, nil)
}

func (s *Server) startInterview() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active, s.stopped = true, false
	greeted := false
	for _, c := range s.conns {
		if c.greeted {
			continue
		}
		s.greet(c)
		greeted = true
	}
	s.greetPending = !greeted
	log.Infof("[api] interview started connections=%d", len(s.conns))
}

func (s *Server) stopInterview() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped, s.active, s.greetPending = true, false, false
	for _, c := range s.conns {
		c.send(transport.EventForceStop, nil)
	}
	log.Info("[api] interview stopped")
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.startInterview()
	utils.RespondJSON(w, http.StatusOK, map[string]string{"question": Greeting})
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"question": "请开始回答下一个问题。"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.stopInterview()
	utils.RespondJSON(w, http.StatusOK, map[string]string{"msg": "面试已结束"})
}

func (s *Server) handleAudioAnalysis(w http.ResponseWriter, r *http.Request) {
	var (
		session record.Session
		err     error
	)
	if sid := r.URL.Query().Get("sid"); sid != "" {
		session, err = s.records.Get(r.Context(), sid)
	} else {
		session, err = s.records.Latest(r.Context())
	}
	if err != nil && !errors.Is(err, record.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	analysis := session.AudioAnalysis
	if analysis == nil {
		analysis = []string{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string][]string{"audio_analysis": analysis})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	var req interview.ReportRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if s.opts.Evaluator != nil && len(req.History) > 0 {
		rep, err := s.opts.Evaluator.Evaluate(r.Context(), req)
		if err == nil {
			utils.RespondJSON(w, http.StatusOK, rep)
			return
		}
		log.Warnf("[api] evaluation failed, using heuristic report: %v", err)
	}
	utils.RespondJSON(w, http.StatusOK, HeuristicReport(req))
}

func (s *Server) handleFaceEmotion(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Image string `json:"image"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"emotion": detectEmotion(payload.Image)})
}

// detectEmotion labels a frame by its mean brightness. Undecodable input
// is "unknown", as the real detector reports.
func detectEmotion(dataURL string) string {
	_, encoded, ok := strings.Cut(dataURL, ",")
	if !ok {
		return "unknown"
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "unknown"
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "unknown"
	}

	b := img.Bounds()
	if b.Empty() {
		return "unknown"
	}
	var sum uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			sum += uint64((299*r + 587*g + 114*bl) / 1000 >> 8)
		}
	}
	mean := sum / uint64(b.Dx()*b.Dy())
	switch {
	case mean >= 170:
		return "happy"
	case mean < 70:
		return "sad"
	default:
		return "neutral"
	}
}
