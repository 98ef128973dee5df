package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合客户端与开发服务器的全部配置项。
type Config struct {
	Server    ServerConfig
	Control   ControlConfig
	Audio     AudioConfig
	Session   SessionConfig
	Vision    VisionConfig
	DevServer DevServerConfig
	AI        AIConfig
	Speech    SpeechConfig
	LogLevel  string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	control, err := loadControlConfig()
	if err != nil {
		return nil, err
	}

	audio, err := loadAudioConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	vision, err := loadVisionConfig()
	if err != nil {
		return nil, err
	}

	dev, err := loadDevServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Control:   control,
		Audio:     audio,
		Session:   session,
		Vision:    vision,
		DevServer: dev,
		AI:        ai,
		Speech:    speech,
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
	}, nil
}

// ServerConfig 描述远端面试服务的地址。
type ServerConfig struct {
	BaseURL     string
	WSPath      string
	HTTPTimeout time.Duration
}

// WebSocketURL derives the ws:// or wss:// endpoint from the HTTP base URL.
func (c ServerConfig) WebSocketURL() string {
	base := strings.TrimRight(c.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + c.WSPath
}

// ControlConfig 本地控制接口的监听地址。
type ControlConfig struct {
	Addr string
}

// AudioConfig 音频采集参数。
type AudioConfig struct {
	InputPath  string
	FrameSize  int
	SampleRate int
	Throttle   time.Duration
}

// SessionConfig 会话编排相关参数。
type SessionConfig struct {
	Debounce       time.Duration
	StartTimeout   time.Duration
	ConnectRetries int
	StatePath      string
}

// VisionConfig 表情采样参数，CameraDir 为空时关闭。
type VisionConfig struct {
	CameraDir string
	Interval  time.Duration
}

// Enabled reports whether emotion sampling has a frame source.
func (c VisionConfig) Enabled() bool {
	return c.CameraDir != ""
}

// DevServerConfig 本地模拟面试服务配置。
type DevServerConfig struct {
	Addr      string
	Questions []string
	AudioDump bool
}

// AIConfig 描述大模型相关配置，仅开发服务器使用。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// SpeechConfig 火山引擎流式语音识别配置，仅开发服务器使用。
type SpeechConfig struct {
	AppID       string
	AccessToken string
	ResourceID  string
	URL         string
	Language    string
	Timeout     time.Duration
}

// Enabled 表示是否可以连接识别服务。
func (c SpeechConfig) Enabled() bool {
	return c.AppID != "" && c.AccessToken != ""
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadServerConfig() (ServerConfig, error) {
	timeout, err := parseOptionalIntEnv("INTERVIEW_HTTP_TIMEOUT")
	if err != nil {
		return ServerConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	baseURL := getEnvOrDefault("INTERVIEW_SERVER_URL", "http://127.0.0.1:5000")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return ServerConfig{}, fmt.Errorf("invalid INTERVIEW_SERVER_URL value: %q", baseURL)
	}

	wsPath := getEnvOrDefault("INTERVIEW_WS_PATH", "/ws")
	if !strings.HasPrefix(wsPath, "/") {
		wsPath = "/" + wsPath
	}

	return ServerConfig{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		WSPath:      wsPath,
		HTTPTimeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// loadControlConfig 解析本地控制接口监听地址。
func loadControlConfig() (ControlConfig, error) {
	addr, err := parseAddrEnv("PORT", "8090")
	if err != nil {
		return ControlConfig{}, err
	}
	return ControlConfig{Addr: addr}, nil
}

func loadAudioConfig() (AudioConfig, error) {
	frameSize, err := parseOptionalIntEnv("AUDIO_FRAME_SIZE")
	if err != nil {
		return AudioConfig{}, err
	}
	size := 4096
	if frameSize != nil {
		if *frameSize < 1 {
			return AudioConfig{}, fmt.Errorf("invalid AUDIO_FRAME_SIZE value %d: must be positive", *frameSize)
		}
		size = *frameSize
	}

	rate, err := parseOptionalIntEnv("AUDIO_SAMPLE_RATE")
	if err != nil {
		return AudioConfig{}, err
	}
	sampleRate := 16000
	if rate != nil {
		sampleRate = *rate
	}

	throttle, err := parseOptionalIntEnv("AUDIO_THROTTLE_MS")
	if err != nil {
		return AudioConfig{}, err
	}
	throttleMS := 0
	if throttle != nil && *throttle > 0 {
		throttleMS = *throttle
	}

	return AudioConfig{
		InputPath:  strings.TrimSpace(os.Getenv("AUDIO_INPUT")),
		FrameSize:  size,
		SampleRate: sampleRate,
		Throttle:   time.Duration(throttleMS) * time.Millisecond,
	}, nil
}

func loadSessionConfig() (SessionConfig, error) {
	debounce, err := parseOptionalIntEnv("ASR_DEBOUNCE_MS")
	if err != nil {
		return SessionConfig{}, err
	}
	debounceMS := 150 // 与前端保持一致的防抖窗口
	if debounce != nil && *debounce >= 0 {
		debounceMS = *debounce
	}

	timeout, err := parseOptionalIntEnv("START_TIMEOUT_SECONDS")
	if err != nil {
		return SessionConfig{}, err
	}
	timeoutSeconds := 20
	if timeout != nil && *timeout > 0 {
		timeoutSeconds = *timeout
	}

	retries, err := parseOptionalIntEnv("CONNECT_RETRIES")
	if err != nil {
		return SessionConfig{}, err
	}
	connectRetries := 3
	if retries != nil {
		if *retries < 1 {
			connectRetries = 1
		} else {
			connectRetries = *retries
		}
	}

	return SessionConfig{
		Debounce:       time.Duration(debounceMS) * time.Millisecond,
		StartTimeout:   time.Duration(timeoutSeconds) * time.Second,
		ConnectRetries: connectRetries,
		StatePath:      getEnvOrDefault("STATE_DB", "interview_state.db"),
	}, nil
}

func loadVisionConfig() (VisionConfig, error) {
	interval, err := parseOptionalIntEnv("EMOTION_INTERVAL_MS")
	if err != nil {
		return VisionConfig{}, err
	}
	intervalMS := 2000
	if interval != nil && *interval > 0 {
		intervalMS = *interval
	}

	return VisionConfig{
		CameraDir: strings.TrimSpace(os.Getenv("CAMERA_DIR")),
		Interval:  time.Duration(intervalMS) * time.Millisecond,
	}, nil
}

func loadDevServerConfig() (DevServerConfig, error) {
	addr, err := parseAddrEnv("DEVSERVER_ADDR", "5000")
	if err != nil {
		return DevServerConfig{}, err
	}

	dump, err := parseBoolEnv("DEVSERVER_AUDIO_DUMP", false)
	if err != nil {
		return DevServerConfig{}, err
	}

	var questions []string
	for _, q := range strings.Split(os.Getenv("DEVSERVER_QUESTIONS"), "|") {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}

	return DevServerConfig{Addr: addr, Questions: questions, AudioDump: dump}, nil
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil && *timeout > 0 {
		timeoutSeconds = *timeout
	}

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		accessToken = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}

	return SpeechConfig{
		AppID:       strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken: accessToken,
		ResourceID:  getEnvOrDefault("SPEECH_ASR_RESOURCE_ID", "volc.bigasr.sauc.duration"),
		URL:         getEnvOrDefault("SPEECH_ASR_URL", "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_async"),
		Language:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "zh-CN"),
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// parseAddrEnv 允许直接传入 ":8080"、"127.0.0.1:8080" 或纯端口号。
func parseAddrEnv(key, defaultPort string) (string, error) {
	port := strings.TrimSpace(os.Getenv(key))
	if port == "" {
		port = defaultPort
	}

	if strings.Contains(port, ":") {
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid %s value: %q", key, port)
	}

	return ":" + port, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
