package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/ai-interview/client/internal/audio"
	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
	"github.com/zhouzirui/ai-interview/client/internal/report"
	"github.com/zhouzirui/ai-interview/client/internal/transport"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
	// maxTurnFrames 每轮最多保留的音频帧
	maxTurnFrames = 1000
)

// conn is one client websocket. Writes are serialized by writeMu; turn
// state is only touched by the read loop.
type conn struct {
	id  string
	sid string
	ws  *websocket.Conn
	srv *Server

	writeMu sync.Mutex
	greeted bool

	samples   []int16
	frames    int
	turn      int
	rec       Recognizer
	finalSent bool
}

func (c *conn) send(event string, payload any) error {
	data, err := transport.EncodeEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debugf("[ws] write %s failed conn=%s: %v", event, c.id, err)
		return err
	}
	return nil
}

func (c *conn) readLoop(ctx context.Context) {
	defer func() {
		if c.rec != nil {
			c.rec.Close()
		}
	}()
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})
	c.ws.SetPingHandler(func(data string) error {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("[ws] read error conn=%s: %v", c.id, err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		if kind == websocket.BinaryMessage {
			c.handleAudio(data)
			continue
		}

		var env transport.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Debugf("[ws] malformed frame conn=%s: %v", c.id, err)
			continue
		}
		c.handleEvent(ctx, env)
	}
}

func (c *conn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (c *conn) handleEvent(ctx context.Context, env transport.Envelope) {
	msg := transport.Message{Event: env.Event, Data: env.Data}
	switch env.Event {
	case transport.EventEndAnswer:
		c.endAnswer(ctx)
	case transport.EventUserAnswer:
		var p transport.TextPayload
		if err := msg.Decode(&p); err != nil {
			log.Debugf("[ws] bad user_answer conn=%s: %v", c.id, err)
			return
		}
		c.userAnswer(ctx, p.Text)
	case transport.EventInterviewEnd:
		c.srv.stopInterview()
	default:
		log.Debugf("[ws] ignore event %q conn=%s", env.Event, c.id)
	}
}

func (c *conn) handleAudio(data []byte) {
	if !c.srv.interviewActive() {
		return
	}
	if c.frames >= maxTurnFrames {
		log.Debugf("[ws] turn frame cap reached conn=%s", c.id)
		return
	}
	frame := interview.FrameFromBytes(data)
	c.frames++
	c.samples = append(c.samples, frame.Samples...)

	if c.rec == nil {
		c.rec = c.srv.newRecognizer(c)
	}
	if partial, changed := c.rec.Feed(frame); changed {
		c.send(transport.EventASRResult, transport.ASRPayload{Text: partial})
	}
	if c.rec.Complete() && !c.finalSent && c.rec.Text() != "" {
		c.finalSent = true
		c.send(transport.EventASRResult, transport.ASRPayload{Text: c.rec.Text(), IsFinal: true, Feedback: "自动结束识别"})
	}
}

// endAnswer analyzes the turn's audio and reports it in answer_result.
func (c *conn) endAnswer(ctx context.Context) {
	samples, transcript := c.samples, ""
	if c.rec != nil {
		if err := c.rec.Close(); err != nil {
			log.Warnf("[ws] recognizer close failed conn=%s: %v", c.id, err)
		}
		transcript = c.rec.Text()
	}
	c.samples, c.frames, c.rec, c.finalSent = nil, 0, nil, false
	c.turn++

	if len(samples) == 0 {
		c.send(transport.EventAnswerResult, transport.FeedbackPayload{AudioAnalysis: report.NoAudioData})
	} else {
		features := AnalyzeVoice(samples, c.srv.opts.SampleRate, transcript)
		text := features.String()
		if err := c.srv.records.AppendAnalysis(ctx, c.sid, text); err != nil {
			log.Warnf("[ws] store analysis failed sid=%s: %v", c.sid, err)
		}
		c.dump(samples)
		log.Infof("[ws] turn analyzed sid=%s %s", c.sid, text)
		c.send(transport.EventAnswerResult, transport.FeedbackPayload{AudioAnalysis: text})
	}
	c.send(transport.EventAnswerResult, transport.FeedbackPayload{Text: transcript})
}

func (c *conn) dump(samples []int16) {
	if c.srv.opts.DumpDir == "" {
		return
	}
	path := filepath.Join(c.srv.opts.DumpDir, fmt.Sprintf("round_%s_%d.wav", c.sid, c.turn))
	if err := audio.WriteWAV(path, samples, c.srv.opts.SampleRate); err != nil {
		log.Warnf("[ws] dump turn audio failed: %v", err)
		return
	}
	log.Debugf("[ws] wrote turn audio to %s", path)
}

// userAnswer records the answer and poses the next question.
func (c *conn) userAnswer(ctx context.Context, raw string) {
	if c.srv.interviewStopped() {
		log.Info("[ws] interview stopped, answer ignored")
		return
	}
	if strings.TrimSpace(raw) == "" {
		session, _ := c.srv.records.Get(ctx, c.sid)
		c.send(transport.EventAIFeedback, transport.FeedbackPayload{Text: feedbackEmpty})
		c.send(transport.EventAIQuestion, transport.TextPayload{Text: session.Question})
		c.send(transport.EventCanAnswer, nil)
		return
	}

	processed, err := c.srv.opts.Interviewer.PolishAnswer(ctx, raw)
	if err != nil || processed == "" {
		if err != nil {
			log.Warnf("[ws] polish answer failed: %v", err)
		}
		processed = raw
	}
	if _, err := c.srv.records.AppendAnswer(ctx, c.sid, processed); err != nil {
		log.Warnf("[ws] record answer failed sid=%s: %v", c.sid, err)
	}

	session, _ := c.srv.records.Get(ctx, c.sid)
	next, done, err := c.srv.opts.Interviewer.NextQuestion(ctx, session.History)
	if err != nil {
		log.Warnf("[ws] next question failed, ending interview: %v", err)
		done = true
	}
	if c.srv.interviewStopped() {
		c.send(transport.EventAIFeedback, transport.FeedbackPayload{Text: EndMessage, ProcessedAnswer: processed})
		return
	}
	if done {
		log.Infof("[ws] interview finished sid=%s turns=%d", c.sid, len(session.History))
		c.send(transport.EventAIFeedback, transport.FeedbackPayload{Text: EndMessage, ProcessedAnswer: processed})
		return
	}

	c.srv.records.SetQuestion(ctx, c.sid, next)
	c.send(transport.EventAIFeedback, transport.FeedbackPayload{Text: feedbackRecorded, ProcessedAnswer: processed})
	c.send(transport.EventAIQuestion, transport.TextPayload{Text: next})
	c.send(transport.EventCanAnswer, nil)
}
