package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"INTERVIEW_SERVER_URL", "INTERVIEW_WS_PATH", "PORT", "AUDIO_FRAME_SIZE",
		"ASR_DEBOUNCE_MS", "START_TIMEOUT_SECONDS", "CONNECT_RETRIES", "CAMERA_DIR",
		"DEVSERVER_QUESTIONS", "AUDIO_THROTTLE_MS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.BaseURL != "http://127.0.0.1:5000" {
		t.Fatalf("unexpected base url: %s", cfg.Server.BaseURL)
	}
	if got := cfg.Server.WebSocketURL(); got != "ws://127.0.0.1:5000/ws" {
		t.Fatalf("unexpected websocket url: %s", got)
	}
	if cfg.Control.Addr != ":8090" {
		t.Fatalf("unexpected control addr: %s", cfg.Control.Addr)
	}
	if cfg.Audio.FrameSize != 4096 || cfg.Audio.SampleRate != 16000 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Audio.Throttle != 0 {
		t.Fatalf("expected throttle disabled, got %s", cfg.Audio.Throttle)
	}
	if cfg.Session.Debounce != 150*time.Millisecond {
		t.Fatalf("unexpected debounce: %s", cfg.Session.Debounce)
	}
	if cfg.Session.ConnectRetries != 3 {
		t.Fatalf("unexpected retries: %d", cfg.Session.ConnectRetries)
	}
	if cfg.Vision.Enabled() {
		t.Fatalf("vision should be disabled without CAMERA_DIR")
	}
	if len(cfg.DevServer.Questions) != 0 {
		t.Fatalf("expected no scripted questions, got %v", cfg.DevServer.Questions)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("INTERVIEW_SERVER_URL", "https://interview.example.com/")
	t.Setenv("INTERVIEW_WS_PATH", "socket")
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("AUDIO_THROTTLE_MS", "256")
	t.Setenv("CONNECT_RETRIES", "0")
	t.Setenv("DEVSERVER_QUESTIONS", "自我介绍 | 项目经历||")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if got := cfg.Server.WebSocketURL(); got != "wss://interview.example.com/socket" {
		t.Fatalf("unexpected websocket url: %s", got)
	}
	if cfg.Control.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected control addr: %s", cfg.Control.Addr)
	}
	if cfg.Audio.Throttle != 256*time.Millisecond {
		t.Fatalf("unexpected throttle: %s", cfg.Audio.Throttle)
	}
	if cfg.Session.ConnectRetries != 1 {
		t.Fatalf("retries should clamp to 1, got %d", cfg.Session.ConnectRetries)
	}
	if len(cfg.DevServer.Questions) != 2 || cfg.DevServer.Questions[1] != "项目经历" {
		t.Fatalf("unexpected questions: %v", cfg.DevServer.Questions)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("AUDIO_FRAME_SIZE", "abc")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric AUDIO_FRAME_SIZE")
	}

	t.Setenv("AUDIO_FRAME_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero AUDIO_FRAME_SIZE")
	}

	t.Setenv("AUDIO_FRAME_SIZE", "")
	t.Setenv("INTERVIEW_SERVER_URL", "ftp://nope")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-http server url")
	}
}

func TestLoadSpeechConfig(t *testing.T) {
	t.Setenv("SPEECH_APP_ID", "")
	t.Setenv("SPEECH_ACCESS_TOKEN", "")
	t.Setenv("SPEECH_API_KEY", "")
	t.Setenv("SPEECH_TIMEOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Speech.Enabled() {
		t.Fatal("speech should be disabled without credentials")
	}
	if cfg.Speech.Timeout != 30*time.Second || cfg.Speech.Language != "zh-CN" {
		t.Fatalf("unexpected speech defaults: %+v", cfg.Speech)
	}

	t.Setenv("SPEECH_APP_ID", "app")
	t.Setenv("SPEECH_API_KEY", "key")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if !cfg.Speech.Enabled() || cfg.Speech.AccessToken != "key" {
		t.Fatalf("api key should back the access token: %+v", cfg.Speech)
	}
}
