package devserver

import (
	"context"
	"time"

	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
	"github.com/zhouzirui/ai-interview/client/internal/service/speech"
)

// speechThresholdDB 低于该响度的帧视为静音
const speechThresholdDB = -40

// Recognizer turns the audio of one answer into text.
type Recognizer interface {
	// Feed consumes a frame and reports the cumulative partial text when it changed.
	Feed(frame interview.AudioFrame) (partial string, changed bool)
	// Complete reports that nothing more will be recognized.
	Complete() bool
	Text() string
	// Close flushes the final result; Text is stable afterwards.
	Close() error
}

// ScriptedRecognizer reveals a fixed answer a few characters per voiced frame.
type ScriptedRecognizer struct {
	script   []rune
	step     int
	revealed int
}

// NewScriptedRecognizer reveals step runes of script per voiced frame.
func NewScriptedRecognizer(script string, step int) *ScriptedRecognizer {
	if step < 1 {
		step = 1
	}
	return &ScriptedRecognizer{script: []rune(script), step: step}
}

func (r *ScriptedRecognizer) Feed(frame interview.AudioFrame) (string, bool) {
	if r.Complete() || frameLoudness(frame.Samples) < speechThresholdDB {
		return "", false
	}
	r.revealed += r.step
	if r.revealed > len(r.script) {
		r.revealed = len(r.script)
	}
	return r.Text(), true
}

func (r *ScriptedRecognizer) Complete() bool {
	return r.revealed >= len(r.script)
}

func (r *ScriptedRecognizer) Text() string {
	return string(r.script[:r.revealed])
}

func (r *ScriptedRecognizer) Close() error { return nil }

// StreamOpener opens one streaming recognition session.
type StreamOpener interface {
	Open(ctx context.Context, connectID string) (*speech.Stream, error)
}

// streamRecognizer forwards every frame to a streaming ASR service and
// reports whatever cumulative text has arrived so far.
type streamRecognizer struct {
	opener  StreamOpener
	id      string
	timeout time.Duration

	stream *speech.Stream
	failed bool
	last   string
}

func newStreamRecognizer(opener StreamOpener, id string, timeout time.Duration) *streamRecognizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &streamRecognizer{opener: opener, id: id, timeout: timeout}
}

func (r *streamRecognizer) Feed(frame interview.AudioFrame) (string, bool) {
	if r.failed {
		return "", false
	}
	if r.stream == nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		stream, err := r.opener.Open(ctx, r.id)
		cancel()
		if err != nil {
			log.Warnf("[asr] open stream %s failed: %v", r.id, err)
			r.failed = true
			return "", false
		}
		r.stream = stream
	}
	if err := r.stream.Send(frame.Bytes()); err != nil {
		log.Warnf("[asr] stream %s stopped: %v", r.id, err)
		r.failed = true
		return "", false
	}

	text, _ := r.stream.Result()
	if text == "" || text == r.last {
		return "", false
	}
	r.last = text
	return text, true
}

func (r *streamRecognizer) Complete() bool {
	if r.stream == nil {
		return false
	}
	_, definite := r.stream.Result()
	return definite && r.last != ""
}

func (r *streamRecognizer) Text() string {
	return r.last
}

func (r *streamRecognizer) Close() error {
	if r.stream == nil {
		return nil
	}
	stream := r.stream
	r.stream = nil
	if r.failed {
		return stream.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	final, err := stream.Finish(ctx)
	if final != "" {
		r.last = final
	}
	return err
}
