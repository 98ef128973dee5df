package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnavailable 连接建立或发送失败，不自动重试。
	ErrUnavailable = errors.New("transport unavailable")
	// ErrNotConnected 在未连接时发送。
	ErrNotConnected = fmt.Errorf("not connected: %w", ErrUnavailable)
)

var log = logrus.WithField("component", "transport")

// Options 连接配置选项
type Options struct {
	ConnectionTimeout time.Duration // 握手超时
	ReadTimeout       time.Duration // 读取超时，收到pong时顺延
	WriteTimeout      time.Duration // 写入超时
	PingInterval      time.Duration // Ping间隔
	MaxRetries        int           // 建连最大尝试次数
	RetryDelay        time.Duration // 第i次重试前等待 i*RetryDelay
}

// DefaultOptions 默认连接选项
func DefaultOptions() *Options {
	return &Options{
		ConnectionTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      25 * time.Second,
		MaxRetries:        3,
		RetryDelay:        time.Second,
	}
}

// Handler receives inbound events in arrival order on the read goroutine.
type Handler func(Message)

type subscription struct {
	id int
	fn Handler
}

// Client owns at most one websocket connection to the interview service.
// Disconnect is terminal for that connection; Connect dials a fresh one.
type Client struct {
	endpoint string
	header   http.Header
	opts     *Options
	dialer   *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string][]subscription
	nextID     int

	onClose func(error)
}

// NewClient creates a client for endpoint. Connect must be called before Send.
func NewClient(endpoint string, opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &Client{
		endpoint: endpoint,
		header:   http.Header{},
		opts:     opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.ConnectionTimeout,
		},
		handlers: make(map[string][]subscription),
	}
}

// SetHeader adds a header sent with every handshake.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header.Set(key, value)
}

// OnClose registers a callback for unexpected connection loss.
// It is not called for Disconnect.
func (c *Client) OnClose(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect opens the connection for session sid. It is idempotent: when a
// connection is already open it returns nil without dialing again.
func (c *Client) Connect(ctx context.Context, sid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	target, err := c.sessionURL(sid)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.endpoint, ErrUnavailable)
	}

	conn, err := c.dialWithRetry(ctx, target)
	if err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		return nil
	})

	connCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.conn = conn
	c.cancel = cancel
	c.done = done

	go c.readLoop(connCtx, conn, done)
	go c.pingLoop(connCtx, conn)

	log.Infof("[transport] connected endpoint=%s sid=%s", c.endpoint, sid)
	return nil
}

func (c *Client) sessionURL(sid string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	if sid != "" {
		q := u.Query()
		q.Set("sid", sid)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// dialWithRetry 带重试的连接建立
func (c *Client) dialWithRetry(ctx context.Context, target string) (*websocket.Conn, error) {
	var lastErr error

	for i := 0; i < c.opts.MaxRetries; i++ {
		conn, _, err := c.dialer.DialContext(ctx, target, c.header.Clone())
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Warnf("[transport] dial attempt %d/%d failed: %v", i+1, c.opts.MaxRetries, err)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
		if i == c.opts.MaxRetries-1 {
			break
		}

		retryDelay := time.Duration(i+1) * c.opts.RetryDelay
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(retryDelay):
		}
	}

	return nil, fmt.Errorf("%w: failed to connect after %d attempts, last error: %v", ErrUnavailable, c.opts.MaxRetries, lastErr)
}

// On registers fn for event and returns an id for Off.
func (c *Client) On(event string, fn Handler) int {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.nextID++
	c.handlers[event] = append(c.handlers[event], subscription{id: c.nextID, fn: fn})
	return c.nextID
}

// Off removes the handler registered under id.
func (c *Client) Off(event string, id int) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	subs := c.handlers[event]
	for i, sub := range subs {
		if sub.id == id {
			c.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (c *Client) dispatch(msg Message) {
	c.handlersMu.RLock()
	subs := append([]subscription(nil), c.handlers[msg.Event]...)
	c.handlersMu.RUnlock()

	for _, sub := range subs {
		sub.fn(msg)
	}
}

// Send emits a named JSON event.
func (c *Client) Send(event string, payload any) error {
	frame, err := EncodeEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return c.write(websocket.TextMessage, frame, event)
}

// SendBinary emits a binary frame; used for audio_stream PCM.
func (c *Client) SendBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data, EventAudioStream)
}

func (c *Client) write(messageType int, data []byte, event string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("%w: send %s: %v", ErrUnavailable, event, err)
	}
	return nil
}

// Disconnect closes the current connection and waits for the reader to exit.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	done := c.done
	c.conn = nil
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}

	cancel()
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	conn.Close()
	<-done

	log.Info("[transport] disconnected")
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(ctx, conn, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))

		switch messageType {
		case websocket.BinaryMessage:
			c.dispatch(Message{Event: EventAudioStream, Binary: data})
		case websocket.TextMessage:
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
				log.Warnf("[transport] dropping malformed frame: %q", truncate(data, 120))
				continue
			}
			c.dispatch(Message{Event: env.Event, Data: env.Data})
		}
	}
}

func (c *Client) handleReadError(ctx context.Context, conn *websocket.Conn, err error) {
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	unexpected := c.conn == conn
	if unexpected {
		c.conn = nil
		if c.cancel != nil {
			c.cancel()
		}
		c.cancel = nil
		c.done = nil
	}
	onClose := c.onClose
	c.mu.Unlock()

	if !unexpected {
		return
	}
	conn.Close()

	log.Warnf("[transport] connection lost: %v", err)
	if onClose != nil {
		onClose(fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
}

// pingLoop 定期发送ping消息
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if c.opts.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				log.Debugf("[transport] ping failed: %v", err)
				return
			}
		}
	}
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
