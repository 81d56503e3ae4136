package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfg         AuthConfig
		wantErr     string
		wantMode    string
		wantEnabled bool
	}{
		{name: "disabled", cfg: AuthConfig{Mode: AuthModeDisabled}, wantMode: AuthModeDisabled},
		{name: "empty mode defaults to disabled", cfg: AuthConfig{}, wantMode: AuthModeDisabled},
		{name: "token", cfg: AuthConfig{Mode: AuthModeToken, Token: "s3cret"}, wantMode: AuthModeToken, wantEnabled: true},
		{name: "token without value", cfg: AuthConfig{Mode: AuthModeToken}, wantErr: "token is empty"},
		{name: "unknown mode", cfg: AuthConfig{Mode: "magic", Token: "x"}, wantErr: "must be a valid value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(): %v", err)
			}
			if cfg.Mode != tt.wantMode {
				t.Errorf("Mode = %q, want %q", cfg.Mode, tt.wantMode)
			}
			if cfg.AuthEnabled() != tt.wantEnabled {
				t.Errorf("AuthEnabled() = %v", cfg.AuthEnabled())
			}
		})
	}
}

func TestConfigValidateNamesSection(t *testing.T) {
	tests := []struct {
		section string
		mutate  func(*Config)
	}{
		{"app", func(c *Config) { c.App.HTTP.Port = 70000 }},
		{"replicas", func(c *Config) { c.Replicas.Path = "" }},
		{"sqlite", func(c *Config) { c.SQLite.Path = "" }},
		{"auth", func(c *Config) { c.Auth = AuthConfig{Mode: AuthModeToken} }},
		{"user", func(c *Config) { c.User.Origin = "" }},
		{"events", func(c *Config) { c.Events.FeedThrottle = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.section, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.HasPrefix(err.Error(), tt.section+":") {
				t.Fatalf("Validate() = %v, want %s error", err, tt.section)
			}
		})
	}
}

func TestUserConfigCanonicalizesOrigin(t *testing.T) {
	cfg := UserConfig{Origin: "DWEB://Alice/"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Origin != "dweb://alice" {
		t.Errorf("Origin = %q, want dweb://alice", cfg.Origin)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	if got := cfg.App.HTTP.Address(); got != ":8080" {
		t.Errorf("Address() = %q", got)
	}
	if cfg.Events.FeedThrottle != 2*time.Second {
		t.Errorf("FeedThrottle = %v", cfg.Events.FeedThrottle)
	}
}
