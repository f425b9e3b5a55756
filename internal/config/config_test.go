package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/abdel0909/mc-bot/internal/world"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	c, err := FromEnv(envOf(map[string]string{"MC_HOST": "mc.example.org"}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.Port != 25565 || c.Username != "BotDemo" || c.Auth != world.AuthOffline || c.Path != "/v1/ws" || c.DataDir != "./data" {
		t.Fatalf("defaults = %+v", c)
	}
	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !reflect.DeepEqual(c.Tuning, DefaultTuning()) {
		t.Fatalf("tuning = %+v", c.Tuning)
	}
}

func TestMissingHost(t *testing.T) {
	c, err := FromEnv(envOf(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if err := c.Finish(); !errors.Is(err, ErrMissingHost) {
		t.Fatalf("Finish err = %v, want ErrMissingHost", err)
	}
}

func TestBadPort(t *testing.T) {
	if _, err := FromEnv(envOf(map[string]string{"MC_PORT": "x"})); err == nil {
		t.Fatalf("expected MC_PORT parse error")
	}
	c, _ := FromEnv(envOf(map[string]string{"MC_HOST": "h", "MC_PORT": "70000"}))
	if err := c.Finish(); err == nil {
		t.Fatalf("expected out-of-range port rejected")
	}
}

func TestParseAuth(t *testing.T) {
	cases := map[string]world.AuthMode{
		"":          world.AuthOffline,
		"offline":   world.AuthOffline,
		"Microsoft": world.AuthMicrosoft,
		"mojang":    world.AuthOffline,
	}
	for in, want := range cases {
		if got := ParseAuth(in); got != want {
			t.Fatalf("ParseAuth(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	c, err := FromEnv(envOf(map[string]string{"MC_HOST": "env-host", "MC_USER": "EnvBot", "MC_DISABLE_DB": "true"}))
	if err != nil {
		t.Fatal(err)
	}
	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	f := BindFlags(fs, &c)
	if err := fs.Parse([]string{"--host", "flag-host", "--port", "25570", "--auth", "microsoft"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f.Apply()
	if c.Host != "flag-host" || c.Port != 25570 || c.Auth != world.AuthMicrosoft {
		t.Fatalf("flags not applied: %+v", c)
	}
	if c.Username != "EnvBot" || !c.DisableDB {
		t.Fatalf("env values lost: %+v", c)
	}
	o := c.Options()
	if o.Host != "flag-host" || o.Username != "EnvBot" || o.Path != "/v1/ws" {
		t.Fatalf("options = %+v", o)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("missing .env: %v", err)
	}
}

func TestLoadTuningFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := "command_prefix: \"#\"\nbuild:\n  auto_start: false\n  height: 4\nidle:\n  interval: 90s\nbackoff:\n  initial: 0s\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, err := LoadTuning(p)
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if tu.CommandPrefix != "#" || tu.Build.AutoStart || tu.Build.Height != 4 || tu.Idle.Interval != 90*time.Second {
		t.Fatalf("tuning = %+v", tu)
	}
	// Untouched keys keep defaults; zero durations are normalized.
	if tu.Backoff.Initial != 5*time.Second || tu.Build.JumpPulse != 450*time.Millisecond || !tu.Idle.Enabled {
		t.Fatalf("defaults lost: %+v", tu)
	}
}

func TestLoadTuningRejectsInvertedBackoff(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("backoff:\n  initial: 40s\n  max: 30s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuning(p); err == nil {
		t.Fatalf("expected inverted backoff rejected")
	}
}

func TestShippedTuningMatchesDefaults(t *testing.T) {
	tu, err := LoadTuning(filepath.Join("..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if !reflect.DeepEqual(tu, DefaultTuning()) {
		t.Fatalf("configs/tuning.yaml drifted from defaults:\n got %+v\nwant %+v", tu, DefaultTuning())
	}
}
