package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
auth:
  jwt_secret: "a-sufficiently-long-signing-secret!!"
database:
  dsn: "postgres://localhost:5432/fluentive"
evaluation:
  mode: llm
  fast: false
  language: en
providers:
  llm:
    name: gemini
    api_key: key
    model: gemini-2.0-flash
    timeout: 12s
  embeddings:
    name: ollama
  stt:
    name: whisper
    base_url: "http://localhost:9000"
  tts:
    name: coqui
    base_url: "http://localhost:5002"
local_model:
  base_url: "http://localhost:11434"
  model: llama3
  timeout: 8s
speech:
  voice: jenny
  ffmpeg_path: ffmpeg
`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Evaluation.Mode != ModeLLM {
		t.Errorf("Mode = %q, want llm", cfg.Evaluation.Mode)
	}
	if cfg.Providers.LLM.Timeout.Std() != 12*time.Second {
		t.Errorf("LLM timeout = %v, want 12s", cfg.Providers.LLM.Timeout)
	}
	if cfg.LocalModel.Model != "llama3" {
		t.Errorf("LocalModel.Model = %q, want llama3", cfg.LocalModel.Model)
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	yaml := `
auth:
  jwt_secret: "secret"
serverr:
  listen_addr: ":8080"
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("LoadFromReader() error = nil, want unknown-field failure")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr: "auth.jwt_secret",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "server.log_level",
		},
		{
			name:    "bad mode",
			mutate:  func(c *Config) { c.Evaluation.Mode = "turbo" },
			wantErr: "evaluation.mode",
		},
		{
			name: "forced mode without llm",
			mutate: func(c *Config) {
				c.Evaluation.Mode = ModeForced
				c.Providers.LLM = ProviderEntry{}
			},
			wantErr: "requires providers.llm",
		},
		{
			name: "forced mode without api key",
			mutate: func(c *Config) {
				c.Evaluation.Mode = ModeForced
				c.Providers.LLM.APIKey = ""
			},
			wantErr: "api_key",
		},
		{
			name: "local mode without model",
			mutate: func(c *Config) {
				c.Evaluation.Mode = ModeLocal
				c.LocalModel.Model = ""
			},
			wantErr: "local_model.model",
		},
		{
			name:    "incomplete tls",
			mutate:  func(c *Config) { c.Server.TLS = &TLSConfig{CertFile: "cert.pem"} },
			wantErr: "server.tls",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromReader(strings.NewReader(validYAML))
			if err != nil {
				t.Fatalf("baseline config invalid: %v", err)
			}
			tt.mutate(cfg)
			err = Validate(cfg)
			if err == nil {
				t.Fatal("Validate() error = nil, want failure")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateForcedModeWithOllamaNeedsNoKey(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("baseline config invalid: %v", err)
	}
	cfg.Evaluation.Mode = ModeForced
	cfg.Providers.LLM = ProviderEntry{Name: "ollama", Model: "llama3"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v, want nil for keyless ollama", err)
	}
}
