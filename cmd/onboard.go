package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/autoreply/internal/config"
	"github.com/nextlevelbuilder/autoreply/internal/store/pg"
)

// onboardAnswers is what the setup wizard collects.
type onboardAnswers struct {
	Mode        string
	Port        string
	Owners      string
	Timezone    string
	DSN         string
	CallbackURL string
	GenToken    bool
}

func onboardCmd() *cobra.Command {
	var nonInteractive bool
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup: write config.json and .env.local",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg := config.Default()
			cfg.ApplyEnvOverrides()

			ans := answersFromConfig(cfg)
			if !nonInteractive {
				if err := onboardForm(&ans).Run(); err != nil {
					return fmt.Errorf("onboard cancelled: %w", err)
				}
			}
			return finishOnboard(cfgPath, cfg, ans)
		},
	}
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "use defaults and AUTOREPLY_* environment variables without prompting")
	return cmd
}

func answersFromConfig(cfg *config.Config) onboardAnswers {
	mode := cfg.Database.Mode
	if mode == "" {
		mode = "standalone"
	}
	return onboardAnswers{
		Mode:        mode,
		Port:        strconv.Itoa(cfg.Gateway.Port),
		Owners:      strings.Join(cfg.Bot.Owners, ", "),
		Timezone:    cfg.Bot.Timezone,
		DSN:         cfg.Database.PostgresDSN,
		CallbackURL: cfg.Delivery.CallbackURL,
		GenToken:    cfg.Gateway.Token == "",
	}
}

func onboardForm(ans *onboardAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Storage").
				Options(
					huh.NewOption("Standalone (SQLite file)", "standalone"),
					huh.NewOption("Managed (PostgreSQL)", "managed"),
				).
				Value(&ans.Mode),
			huh.NewInput().
				Title("Gateway port").
				Value(&ans.Port).
				Validate(validatePort),
			huh.NewInput().
				Title("Owner names").
				Description("Comma-separated; * wildcards allowed").
				Value(&ans.Owners),
			huh.NewInput().
				Title("Timezone").
				Description("IANA name used for %date%, %time% and daily counters").
				Value(&ans.Timezone).
				Validate(validateTimezone),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("PostgreSQL DSN").
				Description("Stored in .env.local, never in config.json").
				EchoMode(huh.EchoModePassword).
				Value(&ans.DSN).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("DSN is required in managed mode")
					}
					return nil
				}),
		).WithHideFunc(func() bool { return ans.Mode != "managed" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Delivery callback URL").
				Description("Deferred replies are POSTed here; leave empty to use the dashboard feed only").
				Value(&ans.CallbackURL),
			huh.NewConfirm().
				Title("Generate an admin API token?").
				Value(&ans.GenToken),
		),
	)
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("port must be 1-65535")
	}
	return nil
}

func validateTimezone(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.LoadLocation(s); err != nil {
		return fmt.Errorf("unknown timezone %q", s)
	}
	return nil
}

// applyAnswers copies the wizard answers into cfg and returns the secrets that
// belong in .env.local.
func applyAnswers(cfg *config.Config, ans onboardAnswers) (map[string]string, error) {
	if err := validatePort(ans.Port); err != nil {
		return nil, err
	}
	if err := validateTimezone(ans.Timezone); err != nil {
		return nil, err
	}
	cfg.Database.Mode = ans.Mode
	cfg.Gateway.Port, _ = strconv.Atoi(strings.TrimSpace(ans.Port))
	cfg.Bot.Timezone = ans.Timezone
	cfg.Bot.Owners = nil
	for _, o := range strings.Split(ans.Owners, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.Bot.Owners = append(cfg.Bot.Owners, o)
		}
	}
	cfg.Delivery.CallbackURL = strings.TrimSpace(ans.CallbackURL)

	secrets := map[string]string{}
	if ans.Mode == "managed" {
		secrets["AUTOREPLY_POSTGRES_DSN"] = ans.DSN
	}
	switch {
	case cfg.Gateway.Token != "":
		secrets["AUTOREPLY_GATEWAY_TOKEN"] = cfg.Gateway.Token
	case ans.GenToken:
		secrets["AUTOREPLY_GATEWAY_TOKEN"] = randomToken()
	}
	if cfg.Delivery.CallbackToken != "" {
		secrets["AUTOREPLY_DELIVERY_TOKEN"] = cfg.Delivery.CallbackToken
	}
	return secrets, nil
}

func finishOnboard(cfgPath string, cfg *config.Config, ans onboardAnswers) error {
	secrets, err := applyAnswers(cfg, ans)
	if err != nil {
		return err
	}

	if ans.Mode == "managed" {
		fmt.Print("Checking PostgreSQL connection... ")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		db, err := pg.OpenDB(ans.DSN)
		if err != nil {
			fmt.Println("FAILED")
			return err
		}
		err = db.PingContext(ctx)
		db.Close()
		if err != nil {
			fmt.Println("FAILED")
			return err
		}
		fmt.Println("OK")
	}

	cfg.StripSecrets()
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	envPath := filepath.Join(filepath.Dir(cfgPath), config.EnvFile)
	if err := writeEnvFile(envPath, secrets); err != nil {
		return fmt.Errorf("write %s: %w", envPath, err)
	}

	fmt.Println()
	fmt.Printf("  Config:  %s\n", cfgPath)
	fmt.Printf("  Secrets: %s\n", envPath)
	if tok, ok := secrets["AUTOREPLY_GATEWAY_TOKEN"]; ok {
		fmt.Printf("  Token:   %s\n", tok)
	}
	fmt.Println()
	if ans.Mode == "managed" {
		fmt.Println("Next: ./autoreply upgrade && ./autoreply")
	} else {
		fmt.Println("Next: ./autoreply")
	}
	return nil
}

// writeEnvFile merges values into the env file, keeping unrelated entries.
func writeEnvFile(path string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		env = make(map[string]string, len(values))
	}
	for k, v := range values {
		env[k] = v
	}
	if err := godotenv.Write(env, path); err != nil {
		return err
	}
	return os.Chmod(path, 0600)
}

func randomToken() string {
	b := make([]byte, 24)
	rand.Read(b)
	return hex.EncodeToString(b)
}
