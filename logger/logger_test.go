package logger

import (
	"testing"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Level != "info" {
		t.Errorf("default level = %q, want info", cfg.Level)
	}
	if cfg.Format != "console" {
		t.Errorf("default format = %q, want console", cfg.Format)
	}
	if cfg.Output != "stdout" {
		t.Errorf("default output = %q, want stdout", cfg.Output)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid json", Config{Level: "debug", Format: "json", Output: "stderr"}, false},
		{"bad level", Config{Level: "verbose", Format: "json"}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFields(t *testing.T) {
	m := Fields("provider", "pg", "attempt", 2)
	if m["provider"] != "pg" {
		t.Errorf("provider = %v, want pg", m["provider"])
	}
	if m["attempt"] != 2 {
		t.Errorf("attempt = %v, want 2", m["attempt"])
	}

	// Odd trailing value is dropped.
	m = Fields("only_key")
	if len(m) != 0 {
		t.Errorf("odd-length input produced %d entries, want 0", len(m))
	}
}

func TestWithComponentDoesNotPanic(t *testing.T) {
	log := Nop().WithComponent("registry").WithFields(map[string]interface{}{"capability": "database"})
	log.Info("hello")
	log.WithError(nil).Debug("bye")
}
