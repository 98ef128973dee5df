// Package transcript 将 ASR 的增量识别片段合并成一段稳定的回答文本。
package transcript

import (
	"strings"
	"sync"
	"time"
)

// DefaultWindow 防抖窗口
const DefaultWindow = 150 * time.Millisecond

// Config wires a Reconciler to its timer source and callbacks.
// Callbacks run without the reconciler's lock held.
type Config struct {
	Window    time.Duration
	Scheduler Scheduler

	// OnUpdate 稳定文本发生变化时调用
	OnUpdate func(stable string)
	// OnFinal 收到 is_final 片段后调用
	OnFinal func(stable string)
	// OnMerge 每个片段的处理结果，用于统计
	OnMerge func(Outcome)
}

// Reconciler holds the stable transcript of one turn.
type Reconciler struct {
	cfg Config

	mu         sync.Mutex
	stable     string
	pending    string
	hasPending bool
	fragments  []string
	timer      Timer
	gen        uint64
	closed     bool
}

// New creates a reconciler; a zero Window applies fragments immediately.
func New(cfg Config) *Reconciler {
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler
	}
	if cfg.Window < 0 {
		cfg.Window = 0
	}
	return &Reconciler{cfg: cfg}
}

// Feed accepts one recognition fragment in delivery order.
func (r *Reconciler) Feed(fragment string, isFinal bool) {
	var notify []func()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	text := strings.TrimSpace(fragment)
	if text != "" {
		r.fragments = append(r.fragments, text)
		if r.hasPending {
			notify = append(notify, r.mergeCallback(Coalesced))
		}
		r.pending = text
		r.hasPending = true
	}

	switch {
	case isFinal:
		r.stopTimerLocked()
		notify = append(notify, r.flushLocked()...)
		r.fragments = nil
		if r.cfg.OnFinal != nil {
			final, onFinal := r.stable, r.cfg.OnFinal
			notify = append(notify, func() { onFinal(final) })
		}
	case text == "":
	case r.cfg.Window == 0:
		notify = append(notify, r.flushLocked()...)
	default:
		r.stopTimerLocked()
		gen := r.gen
		r.timer = r.cfg.Scheduler.AfterFunc(r.cfg.Window, func() { r.fire(gen) })
	}
	r.mu.Unlock()

	run(notify)
}

// fire applies the pending fragment when its timer is still current.
func (r *Reconciler) fire(gen uint64) {
	r.mu.Lock()
	if r.closed || gen != r.gen || !r.hasPending {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	notify := r.flushLocked()
	r.mu.Unlock()

	run(notify)
}

// Finalize applies any pending fragment now and returns the stable
// transcript. An empty result means no speech was recognised.
func (r *Reconciler) Finalize() string {
	r.mu.Lock()
	r.stopTimerLocked()
	notify := r.flushLocked()
	stable := r.stable
	r.mu.Unlock()

	run(notify)
	return stable
}

// Stable returns the current stable transcript without flushing.
func (r *Reconciler) Stable() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stable
}

// rawFragments returns the raw fragments received since the last final.
func (r *Reconciler) rawFragments() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fragments...)
}

// isPending reports whether a fragment is waiting for the debounce timer.
func (r *Reconciler) isPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasPending
}

// Reset clears all per-turn state and cancels the debounce timer.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked()
	r.stable = ""
	r.pending = ""
	r.hasPending = false
	r.fragments = nil
}

// Close resets the reconciler and ignores every later Feed.
func (r *Reconciler) Close() {
	r.Reset()
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Reconciler) stopTimerLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reconciler) flushLocked() []func() {
	if !r.hasPending {
		return nil
	}
	fragment := r.pending
	r.pending = ""
	r.hasPending = false

	merged, outcome := Merge(r.stable, fragment)
	notify := []func(){r.mergeCallback(outcome)}
	if merged != r.stable {
		r.stable = merged
		if r.cfg.OnUpdate != nil {
			onUpdate := r.cfg.OnUpdate
			notify = append(notify, func() { onUpdate(merged) })
		}
	}
	return notify
}

func (r *Reconciler) mergeCallback(outcome Outcome) func() {
	onMerge := r.cfg.OnMerge
	return func() {
		if onMerge != nil {
			onMerge(outcome)
		}
	}
}

func run(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
