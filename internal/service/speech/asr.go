// Package speech 火山引擎大模型流式语音识别客户端，开发服务器用它替代预设回答。
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrStreamClosed 识别流已结束
var ErrStreamClosed = errors.New("asr stream closed")

var log = logrus.WithField("component", "speech")

// 20000000 为成功码
const codeOK = 20000000

// Config 流式识别配置
type Config struct {
	AppID       string
	AccessToken string
	ResourceID  string
	URL         string
	Language    string
	SampleRate  int
	Timeout     time.Duration
}

// Client opens one recognition stream per answer.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
}

// NewClient creates a client. Empty fields fall back to the bigmodel_async defaults.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_async"
	}
	if cfg.ResourceID == "" {
		cfg.ResourceID = "volc.bigasr.sauc.duration" // 小时版
	}
	if cfg.Language == "" {
		cfg.Language = "zh-CN"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
	}
}

// Request 首包的识别参数
type Request struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type utterance struct {
	Text     string `json:"text"`
	Definite bool   `json:"definite"`
}

type serverMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		Text       string      `json:"text"`
		Utterances []utterance `json:"utterances,omitempty"`
	} `json:"result"`
}

func (c *Client) buildRequest(uid string) Request {
	var req Request
	req.User.UID = uid
	req.Audio.Language = c.cfg.Language
	req.Audio.Format = "pcm"
	req.Audio.Codec = "raw"
	req.Audio.Rate = c.cfg.SampleRate
	req.Audio.Bits = 16
	req.Audio.Channel = 1
	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full" // 全量返回，每次结果即为累计文本
	req.Request.EndWindowSize = 800 // 强制判停时间800ms
	return req
}

// Stream is one recognition session. Send may be called from one goroutine
// while results arrive on another.
type Stream struct {
	conn *websocket.Conn
	id   string

	writeMu  sync.Mutex
	seq      int32
	finished bool

	mu       sync.Mutex
	text     string
	definite bool
	err      error
	done     chan struct{}
}

// Open dials the service and sends the request header packet.
func (c *Client) Open(ctx context.Context, connectID string) (*Stream, error) {
	header := http.Header{}
	header.Set("X-Api-App-Key", c.cfg.AppID)
	header.Set("X-Api-Access-Key", c.cfg.AccessToken)
	header.Set("X-Api-Resource-Id", c.cfg.ResourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ASR WebSocket: %w", err)
	}
	if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
		log.Debugf("[asr] connected id=%s logid=%s", connectID, logid)
	}

	payload, err := json.Marshal(c.buildRequest(connectID))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	compressed, err := CompressPayload(payload, GzipCompression)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, NewFullClientRequest(compressed, GzipCompression).Encode()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send ASR request: %w", err)
	}

	// 首包占用序号1，音频从2开始
	s := &Stream{conn: conn, id: connectID, seq: 1, done: make(chan struct{})}
	go s.readLoop()
	return s, nil
}

// Send streams one chunk of little-endian PCM16.
func (s *Stream) Send(pcm []byte) error {
	return s.write(pcm, false)
}

func (s *Stream) write(pcm []byte, last bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.finished {
		return ErrStreamClosed
	}
	if err := s.Err(); err != nil {
		return err
	}

	compressed, err := CompressPayload(pcm, GzipCompression)
	if err != nil {
		return err
	}
	s.seq++
	msg := NewAudioRequest(compressed, s.seq, last, GzipCompression)
	if last {
		s.finished = true
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, msg.Encode()); err != nil {
		return fmt.Errorf("failed to send audio chunk: %w", err)
	}
	return nil
}

// Result returns the cumulative transcript and whether an utterance has
// been marked definite by the server's endpointing.
func (s *Stream) Result() (text string, definite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.definite
}

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Finish sends the last packet and waits for the final result until ctx is done.
func (s *Stream) Finish(ctx context.Context) (string, error) {
	defer s.conn.Close()

	writeErr := s.write(nil, true)
	if errors.Is(writeErr, ErrStreamClosed) {
		writeErr = nil
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return s.textOnly(), ctx.Err()
	}
	if err := s.Err(); err != nil {
		return s.textOnly(), err
	}
	return s.textOnly(), writeErr
}

// Close drops the connection without waiting for a final result.
func (s *Stream) Close() error {
	return s.conn.Close()
}

func (s *Stream) textOnly() string {
	text, _ := s.Result()
	return text
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Stream) readLoop() {
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.fail(fmt.Errorf("failed to read ASR response: %w", err))
			}
			return
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			s.fail(fmt.Errorf("failed to decode ASR message: %w", err))
			return
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			payload, _ := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			s.fail(fmt.Errorf("ASR error %d: %s", msg.ErrorCode, string(payload)))
			return

		case FullServerResponse:
			payload, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				s.fail(fmt.Errorf("failed to decompress ASR payload: %w", err))
				return
			}
			var resp serverMessage
			if err := json.Unmarshal(payload, &resp); err != nil {
				log.Debugf("[asr] failed to unmarshal response id=%s: %v", s.id, err)
				continue
			}
			if resp.Code != 0 && resp.Code != codeOK {
				s.fail(fmt.Errorf("ASR API error %d: %s", resp.Code, resp.Message))
				return
			}
			s.apply(resp)
			if msg.IsLastPacket() {
				return
			}
		}
	}
}

func (s *Stream) apply(resp serverMessage) {
	text := resp.Result.Text
	definite := false
	var parts []string
	for _, u := range resp.Result.Utterances {
		parts = append(parts, u.Text)
		definite = definite || u.Definite
	}
	if text == "" {
		text = strings.Join(parts, "")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if text != "" {
		s.text = text
	}
	s.definite = s.definite || definite
}
