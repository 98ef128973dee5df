package session

import (
	"errors"

	"github.com/zhouzirui/ai-interview/client/internal/api"
	"github.com/zhouzirui/ai-interview/client/internal/audio"
	"github.com/zhouzirui/ai-interview/client/internal/transport"
)

// Level 提示级别
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Kind 提示类别，对应错误分类
type Kind string

const (
	KindInfo                 Kind = "info"
	KindPermissionDenied     Kind = "permission_denied"
	KindTransportUnavailable Kind = "transport_unavailable"
	KindEmptyAnswer          Kind = "empty_answer"
	KindRemoteRequestFailed  Kind = "remote_request_failed"
	KindStartTimeout         Kind = "start_timeout"
)

// ErrStartTimeout 开始面试后在超时时间内没有收到第一道题。
var ErrStartTimeout = errors.New("interview service did not pose a question in time")

// Notice is a transient user-visible message.
type Notice struct {
	Level   Level  `json:"level"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// noticeFor classifies err into the error taxonomy.
func noticeFor(err error) Notice {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return Notice{Level: LevelError, Kind: KindPermissionDenied, Message: "无法访问麦克风：" + err.Error()}
	case errors.Is(err, transport.ErrUnavailable):
		return Notice{Level: LevelError, Kind: KindTransportUnavailable, Message: "与面试服务的连接不可用：" + err.Error()}
	case errors.Is(err, ErrEmptyAnswer):
		return Notice{Level: LevelWarning, Kind: KindEmptyAnswer, Message: "没有检测到回答内容"}
	case errors.Is(err, api.ErrRemoteRequestFailed):
		return Notice{Level: LevelError, Kind: KindRemoteRequestFailed, Message: "请求面试服务失败：" + err.Error()}
	case errors.Is(err, ErrStartTimeout):
		return Notice{Level: LevelError, Kind: KindStartTimeout, Message: "面试服务无响应，请稍后重新开始"}
	default:
		return Notice{Level: LevelError, Kind: KindInfo, Message: err.Error()}
	}
}

// Update is pushed to subscribers whenever something visible changes.
type Update struct {
	Type       string    `json:"type"` // state | question | transcript | feedback | notice
	State      string    `json:"state,omitempty"`
	Question   string    `json:"question,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Feedback   string    `json:"feedback,omitempty"`
	Notice     *Notice   `json:"notice,omitempty"`
	Snapshot   *Snapshot `json:"snapshot,omitempty"`
}
