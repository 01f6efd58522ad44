package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"gemini", "openai", "ollama", "anthropic", "mistral", "groq"},
	"embeddings": {"openai", "ollama"},
	"stt":        {"whisper", "whisper-native"},
	"tts":        {"coqui"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	} else if len(cfg.Auth.JWTSecret) < 32 {
		slog.Warn("auth.jwt_secret is shorter than 32 bytes; consider a longer secret")
	}

	mode := cfg.Evaluation.Mode
	if mode != "" && !mode.IsValid() {
		errs = append(errs, fmt.Errorf("evaluation.mode %q is invalid; valid values: llm, forced, local, rules, static", mode))
	}

	// Forced mode exists so a misconfigured deployment fails loudly instead
	// of silently grading with the rule tier.
	if mode == ModeForced {
		if cfg.Providers.LLM.Name == "" {
			errs = append(errs, errors.New("evaluation.mode \"forced\" requires providers.llm to be configured"))
		}
		if cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.Name != "ollama" && cfg.Providers.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("evaluation.mode \"forced\" requires providers.llm.api_key for %q", cfg.Providers.LLM.Name))
		}
	}
	if mode == ModeLocal && cfg.LocalModel.Model == "" {
		errs = append(errs, errors.New("evaluation.mode \"local\" requires local_model.model"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Database.DSN == "" {
		slog.Warn("database.dsn is empty; sessions will be stored in memory and lost on restart")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; audio uploads will be rejected")
	}
	if cfg.Providers.TTS.Name == "" && !cfg.Evaluation.DisableSpeech {
		slog.Warn("providers.tts is not configured; feedback speech will use silent placeholder clips")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
