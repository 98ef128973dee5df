// Package session 面试会话编排：状态机、事件循环以及音频/连接等资源的生命周期。
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/ai-interview/client/internal/api"
	"github.com/zhouzirui/ai-interview/client/internal/audio"
	"github.com/zhouzirui/ai-interview/client/internal/metrics"
	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
	"github.com/zhouzirui/ai-interview/client/internal/transcript"
	"github.com/zhouzirui/ai-interview/client/internal/transport"
)

// ErrClosed 编排器已关闭
var ErrClosed = errors.New("session orchestrator closed")

var log = logrus.WithField("component", "session")

// Transport is the streaming connection the orchestrator owns and writes to.
type Transport interface {
	Connect(ctx context.Context, sid string) error
	Send(event string, payload any) error
	SendBinary(data []byte) error
	On(event string, fn transport.Handler) int
	Off(event string, id int)
	OnClose(fn func(error))
	Disconnect()
}

// Remote is the REST side of the interview service.
type Remote interface {
	StartInterview(ctx context.Context) (*api.StartResponse, error)
	StopInterview(ctx context.Context) error
}

// Capturer starts microphone capture.
type Capturer interface {
	Start(ctx context.Context, onFrame func(interview.AudioFrame)) (*audio.Handle, error)
}

// Recorder persists the session id and completed turns.
type Recorder interface {
	SaveSessionID(ctx context.Context, sid string) error
	AppendHistory(ctx context.Context, sid string, seq int, entry interview.HistoryEntry) error
}

// EmotionSampler collects emotion labels until ctx is done.
type EmotionSampler interface {
	Run(ctx context.Context, sink func(label string))
}

// Options 编排器依赖与参数
type Options struct {
	Transport Transport
	Remote    Remote
	Capture   Capturer
	Recorder  Recorder       // 可选
	Sampler   EmotionSampler // 可选
	Metrics   *metrics.Metrics

	Debounce     time.Duration
	StartTimeout time.Duration

	NewID     func() string
	AfterFunc func(d time.Duration, f func()) transcript.Timer
	Now       func() time.Time
}

// Snapshot is a consistent copy of the visible session state.
type Snapshot struct {
	interview.Session
	State         string   `json:"state"`
	AnswerEnabled bool     `json:"answerEnabled"`
	Transcript    string   `json:"transcript,omitempty"`
	EmotionCount  int      `json:"emotionCount"`
	VoiceAnalysis []string `json:"voiceAnalysis,omitempty"`
}

// Orchestrator owns all mutable session state. Every mutation runs on its
// single loop goroutine, so no two transitions interleave.
type Orchestrator struct {
	opts Options

	machine   Machine
	sid       string
	startedAt time.Time
	rec       *transcript.Reconciler
	capture   *audio.Handle
	emotions  []interview.EmotionSample
	voice     []interview.VoiceAnalysisRecord

	startGen      uint64
	starting      bool
	startTimer    transcript.Timer
	samplerCancel context.CancelFunc
	lastState     State

	handlerIDs map[string]int

	mbox    *mailbox
	quit    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	once    sync.Once

	subsMu  sync.Mutex
	subs    map[int]chan Update
	nextSub int
}

// New wires the orchestrator to its dependencies and starts its loop.
func New(opts Options) *Orchestrator {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) transcript.Timer { return time.AfterFunc(d, f) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 20 * time.Second
	}

	o := &Orchestrator{
		opts:       opts,
		handlerIDs: make(map[string]int),
		mbox:       newMailbox(),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		subs:       make(map[int]chan Update),
	}

	o.rec = transcript.New(transcript.Config{
		Window: opts.Debounce,
		Scheduler: transcript.SchedulerFunc(func(d time.Duration, f func()) transcript.Timer {
			return opts.AfterFunc(d, func() { o.post(f) })
		}),
		OnUpdate: func(stable string) {
			if turn := o.machine.Turn(); turn != nil {
				turn.StableTranscript = stable
			}
			o.publish(Update{Type: "transcript", Transcript: stable})
		},
		OnFinal: func(stable string) {
			log.Debugf("[session] recognition final: %q", stable)
		},
		OnMerge: func(outcome transcript.Outcome) {
			o.opts.Metrics.RecordFragment(outcome.String())
		},
	})

	for _, event := range inboundEvents {
		o.handlerIDs[event] = opts.Transport.On(event, o.onMessage)
	}
	opts.Transport.OnClose(func(err error) {
		o.post(func() { o.handle(TransportLost{Err: err}) })
	})

	go o.loop()
	return o
}

func (o *Orchestrator) loop() {
	defer close(o.stopped)
	for {
		select {
		case <-o.mbox.signal:
			for _, fn := range o.mbox.drain() {
				fn()
			}
		case <-o.quit:
			return
		}
	}
}

func (o *Orchestrator) post(fn func()) bool {
	if o.closed.Load() {
		return false
	}
	o.mbox.push(fn)
	return true
}

// call runs fn on the loop and waits for its result.
func (o *Orchestrator) call(fn func() error) error {
	res := make(chan error, 1)
	if !o.post(func() { res <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-o.stopped:
		return ErrClosed
	}
}

func (o *Orchestrator) onMessage(msg transport.Message) {
	ev, err := DecodeEvent(msg)
	if err != nil {
		log.Warnf("[session] drop inbound event: %v", err)
		return
	}
	o.post(func() { o.handle(ev) })
}

// Start begins a new interview from Idle or ForceStopped. History, emotion
// samples and transcript state are reset before the connection is opened.
// A Stop that lands while Start is connecting wins: the connection is
// closed and the remote interview is never started.
func (o *Orchestrator) Start(ctx context.Context) error {
	var sid string
	var gen uint64
	err := o.call(func() error {
		if o.starting {
			return fmt.Errorf("%w: start already in progress", ErrInvalidTransition)
		}
		if err := o.machine.Start(); err != nil {
			return err
		}
		o.releaseLive()
		o.emotions = nil
		o.voice = nil
		o.sid = o.opts.NewID()
		o.startedAt = o.opts.Now()
		o.startGen++
		o.starting = true
		gen, sid = o.startGen, o.sid
		o.publishState()
		return nil
	})
	if err != nil {
		return err
	}
	defer o.post(func() { o.starting = false })
	log.Infof("[session] starting sid=%s", sid)

	if o.opts.Recorder != nil {
		if err := o.opts.Recorder.SaveSessionID(ctx, sid); err != nil {
			log.Warnf("[session] persist sid failed: %v", err)
		}
	}

	if err := o.opts.Transport.Connect(ctx, sid); err != nil {
		o.call(func() error { o.abortStart(gen, err); return nil })
		return err
	}
	if err := o.call(func() error { return o.checkStarting(gen) }); err != nil {
		return err
	}
	if _, err := o.opts.Remote.StartInterview(ctx); err != nil {
		o.call(func() error { o.abortStart(gen, err); return nil })
		return err
	}

	return o.call(func() error {
		if err := o.checkStarting(gen); err != nil {
			return err
		}
		if o.machine.Question() == "" {
			o.armStartTimeout(gen)
		}
		o.startSampler()
		return nil
	})
}

// checkStarting runs after each suspension point of Start. When the session
// was stopped meanwhile, the freshly opened connection is closed again.
func (o *Orchestrator) checkStarting(gen uint64) error {
	if s := o.machine.State(); gen == o.startGen && s != Idle && s != ForceStopped {
		return nil
	}
	log.Infof("[session] stopped while starting, closing connection")
	o.opts.Transport.Disconnect()
	return fmt.Errorf("%w: stopped while starting", ErrInvalidTransition)
}

func (o *Orchestrator) abortStart(gen uint64, err error) {
	if gen != o.startGen {
		return
	}
	if s := o.machine.State(); s == Idle || s == ForceStopped {
		o.opts.Transport.Disconnect()
		return
	}
	log.Warnf("[session] start failed: %v", err)
	o.releaseLive()
	o.opts.Transport.Disconnect()
	o.machine.Abort()
	o.notify(err)
	o.publishState()
}

func (o *Orchestrator) armStartTimeout(gen uint64) {
	o.stopStartTimer()
	o.startTimer = o.opts.AfterFunc(o.opts.StartTimeout, func() {
		o.post(func() {
			if gen != o.startGen || o.machine.State() != Posed || o.machine.Question() != "" {
				return
			}
			o.abortStart(gen, fmt.Errorf("%w after %s", ErrStartTimeout, o.opts.StartTimeout))
		})
	})
}

func (o *Orchestrator) stopStartTimer() {
	if o.startTimer != nil {
		o.startTimer.Stop()
		o.startTimer = nil
	}
}

// StartAnswer opens a turn and begins audio capture. It is rejected with
// ErrInvalidTransition unless answering is enabled for an unanswered question.
func (o *Orchestrator) StartAnswer(ctx context.Context) error {
	return o.call(func() error {
		if err := o.machine.StartAnswer(); err != nil {
			return err
		}
		o.rec.Reset()

		handle, err := o.opts.Capture.Start(ctx, o.sendFrame)
		if err != nil {
			o.machine.CancelAnswer()
			o.notify(err)
			o.publishState()
			return err
		}
		o.capture = handle
		go o.watchCapture(handle)
		o.publishState()
		log.Infof("[session] answering question=%q", o.machine.Question())
		return nil
	})
}

// watchCapture reports a capture that ended by itself, either at the end of
// the input or on a read error. Stops issued by the loop stay silent.
func (o *Orchestrator) watchCapture(h *audio.Handle) {
	<-h.Done()
	o.post(func() {
		if o.capture != h || o.machine.State() != Answering {
			return
		}
		if err := h.Err(); err != nil {
			o.notify(fmt.Errorf("audio capture: %w", err))
			return
		}
		log.Info("[session] audio input ended")
		o.publish(Update{Type: "notice", Notice: &Notice{Level: LevelInfo, Kind: KindInfo, Message: "音频输入已结束，请结束作答"}})
	})
}

// sendFrame runs on the capture goroutine and writes straight to the socket.
func (o *Orchestrator) sendFrame(frame interview.AudioFrame) {
	err := o.opts.Transport.SendBinary(frame.Bytes())
	o.opts.Metrics.RecordFrameSent(err)
	if err != nil {
		log.Debugf("[session] audio frame dropped: %v", err)
	}
}

// EndAnswer stops capture and submits the reconciled transcript. With no
// speech it returns ErrEmptyAnswer and answering is offered again.
func (o *Orchestrator) EndAnswer() error {
	return o.call(func() error {
		if o.machine.State() != Answering {
			return fmt.Errorf("%w: end answer while %s", ErrInvalidTransition, o.machine.State())
		}
		o.stopCapture()

		// 先通知服务端结束本轮语音，再提交文本
		if err := o.opts.Transport.Send(transport.EventEndAnswer, nil); err != nil {
			o.notify(err)
		}

		text := o.rec.Finalize()
		if err := o.machine.EndAnswer(text); err != nil {
			o.opts.Metrics.RecordAnswer("empty")
			o.notify(err)
			o.publishState()
			return err
		}
		o.opts.Metrics.RecordAnswer("submitted")
		o.publishState()

		if err := o.opts.Transport.Send(transport.EventUserAnswer, transport.TextPayload{Text: text}); err != nil {
			o.notify(err)
			return err
		}
		log.Infof("[session] answer submitted chars=%d", len([]rune(text)))
		return nil
	})
}

// Stop ends the interview on user request. The local transition happens
// even when the remote stop call fails.
func (o *Orchestrator) Stop(ctx context.Context) error {
	err := o.call(func() error {
		if err := o.machine.Stop(); err != nil {
			return err
		}
		o.releaseLive()
		if err := o.opts.Transport.Send(transport.EventInterviewEnd, nil); err != nil {
			log.Warnf("[session] send interview_end failed: %v", err)
		}
		o.publishState()
		return nil
	})
	if err != nil {
		return err
	}

	stopErr := o.opts.Remote.StopInterview(ctx)
	o.opts.Transport.Disconnect()
	if stopErr != nil {
		o.post(func() { o.notify(stopErr) })
		return stopErr
	}
	log.Info("[session] stopped by user")
	return nil
}

// AddEmotion appends a sampled label while an interview is active.
func (o *Orchestrator) AddEmotion(label string) {
	o.post(func() {
		if s := o.machine.State(); s == Idle || s == ForceStopped {
			return
		}
		label = strings.TrimSpace(label)
		if label == "" {
			return
		}
		o.emotions = append(o.emotions, interview.EmotionSample{Label: label})
		o.opts.Metrics.RecordEmotionSample()
	})
}

// Snapshot returns a copy of the visible state.
func (o *Orchestrator) Snapshot() Snapshot {
	var snap Snapshot
	if err := o.call(func() error { snap = o.snapshot(); return nil }); err != nil {
		return Snapshot{Session: interview.Session{History: []interview.HistoryEntry{}}, State: Idle.String()}
	}
	return snap
}

// ReportInputs returns what the report assembler needs.
func (o *Orchestrator) ReportInputs() (sid string, history []interview.HistoryEntry, emotions []interview.EmotionSample) {
	o.call(func() error {
		sid = o.sid
		history = o.machine.History()
		emotions = append([]interview.EmotionSample(nil), o.emotions...)
		return nil
	})
	return sid, history, emotions
}

func (o *Orchestrator) snapshot() Snapshot {
	snap := Snapshot{
		Session: interview.Session{
			SID:             o.sid,
			CurrentQuestion: o.machine.Question(),
			History:         o.machine.History(),
			StartedAt:       o.startedAt,
		},
		State:         o.machine.State().String(),
		AnswerEnabled: o.machine.AnswerEnabled(),
		Transcript:    o.rec.Stable(),
		EmotionCount:  len(o.emotions),
	}
	if snap.History == nil {
		snap.History = []interview.HistoryEntry{}
	}
	for _, v := range o.voice {
		snap.VoiceAnalysis = append(snap.VoiceAnalysis, v.Text)
	}
	return snap
}

// Subscribe returns a stream of updates; slow subscribers miss updates
// rather than stall the loop.
func (o *Orchestrator) Subscribe() (<-chan Update, func()) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	o.nextSub++
	id := o.nextSub
	ch := make(chan Update, 64)
	o.subs[id] = ch
	return ch, func() {
		o.subsMu.Lock()
		defer o.subsMu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
}

// Close releases capture and connection and stops the loop.
func (o *Orchestrator) Close() {
	o.once.Do(func() {
		o.call(func() error {
			o.releaseLive()
			o.rec.Close()
			return nil
		})
		for event, id := range o.handlerIDs {
			o.opts.Transport.Off(event, id)
		}
		o.opts.Transport.Disconnect()
		o.closed.Store(true)
		close(o.quit)
		<-o.stopped

		o.subsMu.Lock()
		for id, ch := range o.subs {
			delete(o.subs, id)
			close(ch)
		}
		o.subsMu.Unlock()
	})
}

func (o *Orchestrator) handle(ev Event) {
	switch e := ev.(type) {
	case QuestionPosed:
		o.onQuestion(e.Text)
	case AnswerEnabled:
		if err := o.machine.EnableAnswer(); err != nil {
			log.Debugf("[session] ignore can_answer: %v", err)
			return
		}
		o.publishState()
	case TranscriptFragment:
		o.onFragment(e)
	case FeedbackReceived:
		o.recordVoice(e.AudioAnalysis)
		o.onFeedback(e)
	case AnswerAnalysis:
		o.recordVoice(e.AudioAnalysis)
	case ForceStoppedEvent:
		if o.machine.State() == ForceStopped {
			return
		}
		log.Info("[session] interview stopped by server")
		o.releaseLive()
		o.machine.ForceStop()
		o.opts.Transport.Disconnect()
		o.publishState()
	case TransportLost:
		if s := o.machine.State(); s == Idle || s == ForceStopped {
			return
		}
		o.stopCapture()
		o.notify(e.Err)
		o.publishState()
	}
}

func (o *Orchestrator) onQuestion(text string) {
	o.stopStartTimer()
	abandoned, err := o.machine.PoseQuestion(text)
	if err != nil {
		log.Debugf("[session] ignore question: %v", err)
		return
	}
	if abandoned {
		o.stopCapture()
		o.rec.Reset()
		o.publish(Update{Type: "notice", Notice: &Notice{Level: LevelWarning, Kind: KindInfo, Message: "新问题已到达，本轮作答已中断"}})
	}
	if o.machine.State() == FeedbackPending {
		log.Debugf("[session] next question held until feedback: %q", text)
		return
	}
	o.publish(Update{Type: "question", Question: text})
	o.publishState()
}

func (o *Orchestrator) onFragment(e TranscriptFragment) {
	if o.machine.State() != Answering {
		return
	}
	if text := strings.TrimSpace(e.Text); text != "" {
		turn := o.machine.Turn()
		turn.RawTranscriptFragments = append(turn.RawTranscriptFragments, text)
	}
	o.rec.Feed(e.Text, e.IsFinal)
	if e.Feedback != "" {
		o.publish(Update{Type: "notice", Notice: &Notice{Level: LevelInfo, Kind: KindInfo, Message: e.Feedback}})
	}
}

func (o *Orchestrator) onFeedback(e FeedbackReceived) {
	question := o.machine.Question()
	entry, err := o.machine.Feedback(e.ProcessedAnswer)
	if err != nil {
		log.Debugf("[session] ignore feedback: %v", err)
		return
	}

	history := o.machine.History()
	if o.opts.Recorder != nil {
		if err := o.opts.Recorder.AppendHistory(context.Background(), o.sid, len(history)-1, entry); err != nil {
			log.Warnf("[session] archive history failed: %v", err)
		}
	}

	feedback := e.Text
	if feedback == "" {
		feedback = entry.Answer
	}
	o.publish(Update{Type: "feedback", Feedback: feedback})
	if next := o.machine.Question(); next != question {
		o.publish(Update{Type: "question", Question: next})
	}
	o.publishState()
}

func (o *Orchestrator) recordVoice(text string) {
	if text == "" {
		return
	}
	o.voice = append(o.voice, interview.VoiceAnalysisRecord{Text: text})
}

// releaseLive cancels every scoped resource of the active interview.
func (o *Orchestrator) releaseLive() {
	o.stopStartTimer()
	o.stopCapture()
	o.rec.Reset()
	if o.samplerCancel != nil {
		o.samplerCancel()
		o.samplerCancel = nil
	}
}

func (o *Orchestrator) stopCapture() {
	if o.capture != nil {
		o.capture.Stop()
		o.capture = nil
	}
}

func (o *Orchestrator) startSampler() {
	if o.opts.Sampler == nil || o.samplerCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.samplerCancel = cancel
	go o.opts.Sampler.Run(ctx, o.AddEmotion)
}

func (o *Orchestrator) notify(err error) {
	n := noticeFor(err)
	o.opts.Metrics.RecordNotice(string(n.Kind))
	log.Warnf("[session] notice kind=%s: %s", n.Kind, n.Message)
	o.publish(Update{Type: "notice", Notice: &n})
}

func (o *Orchestrator) publishState() {
	state := o.machine.State()
	if state != o.lastState {
		o.opts.Metrics.RecordTransition(state.String())
		o.lastState = state
	}
	snap := o.snapshot()
	o.publish(Update{Type: "state", State: state.String(), Snapshot: &snap})
}

func (o *Orchestrator) publish(u Update) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
