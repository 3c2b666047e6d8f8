package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"

	"github.com/nextlevelbuilder/autoreply/internal/config"
)

func TestApplyAnswers(t *testing.T) {
	cfg := config.Default()
	secrets, err := applyAnswers(cfg, onboardAnswers{
		Mode:     "managed",
		Port:     "9000",
		Owners:   " boss, ops-* ,",
		Timezone: "UTC",
		DSN:      "postgres://x",
		GenToken: true,
	})
	if err != nil {
		t.Fatalf("applyAnswers() = %v", err)
	}
	if cfg.Gateway.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Gateway.Port)
	}
	if got := []string(cfg.Bot.Owners); len(got) != 2 || got[0] != "boss" || got[1] != "ops-*" {
		t.Errorf("Owners = %q, want [boss ops-*]", got)
	}
	if secrets["AUTOREPLY_POSTGRES_DSN"] != "postgres://x" {
		t.Errorf("DSN secret = %q", secrets["AUTOREPLY_POSTGRES_DSN"])
	}
	if len(secrets["AUTOREPLY_GATEWAY_TOKEN"]) != 48 {
		t.Errorf("generated token = %q, want 48 hex chars", secrets["AUTOREPLY_GATEWAY_TOKEN"])
	}
}

func TestApplyAnswersRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		ans  onboardAnswers
	}{
		{"port", onboardAnswers{Port: "70000"}},
		{"timezone", onboardAnswers{Port: "80", Timezone: "Mars/Olympus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := applyAnswers(config.Default(), tt.ans); err == nil {
				t.Error("applyAnswers() = nil error")
			}
		})
	}
}

func TestWriteEnvFileMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.local")
	if err := os.WriteFile(path, []byte("KEEP=1\nAUTOREPLY_GATEWAY_TOKEN=old\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := writeEnvFile(path, map[string]string{"AUTOREPLY_GATEWAY_TOKEN": "new"}); err != nil {
		t.Fatalf("writeEnvFile() = %v", err)
	}
	env, err := godotenv.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if env["KEEP"] != "1" || env["AUTOREPLY_GATEWAY_TOKEN"] != "new" {
		t.Errorf("env = %v", env)
	}
}
