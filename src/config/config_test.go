package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
name: finboard-test
host: 127.0.0.1
port: 8080
log_level: DEBUG
storage:
  db_type: sqlite
  db_path: test.db
providers:
  - name: finnhub
    url: wss://ws.finnhub.io
    token: abc
widgets:
  - id: w1
    provider: finnhub
    symbol: AAPL
`

// -----------------------------------------------------------------------------

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	rt := cfg.Realtime
	if rt.ConnectTimeoutSeconds != 10 {
		t.Errorf("connect timeout = %d, want default 10", rt.ConnectTimeoutSeconds)
	}
	if rt.InitialReconnectDelaySecs != 3 || rt.MinReconnectDelaySecs != 3 || rt.MaxReconnectDelaySecs != 60 {
		t.Errorf("reconnect delays = %d/%d/%d, want 3/3/60",
			rt.InitialReconnectDelaySecs, rt.MinReconnectDelaySecs, rt.MaxReconnectDelaySecs)
	}
	if rt.MaxReconnectAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", rt.MaxReconnectAttempts)
	}
	if rt.RateLimitCooldownSecs != 60 {
		t.Errorf("cooldown = %d, want 60", rt.RateLimitCooldownSecs)
	}
	if rt.SettleDelayMs != 1000 {
		t.Errorf("settle delay = %d, want 1000", rt.SettleDelayMs)
	}
	if rt.BarRingCapacity != 3600 {
		t.Errorf("ring capacity = %d, want 3600", rt.BarRingCapacity)
	}
	if cfg.Proxy.RateLimitPerMinute != 60 {
		t.Errorf("proxy rate limit = %d, want 60", cfg.Proxy.RateLimitPerMinute)
	}
}

func TestTokenResolvedFromEnvironment(t *testing.T) {
	t.Setenv("FINBOARD_EMPTYTOK_TOKEN", "from-env")

	yaml := `
name: finboard-test
host: 127.0.0.1
port: 8080
storage:
  db_type: sqlite
  db_path: test.db
providers:
  - name: emptytok
    url: wss://example.com/ws
`
	cfg, err := NewConfig(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	p, ok := cfg.Provider("emptytok")
	if !ok {
		t.Fatalf("provider lookup failed")
	}
	if p.Token != "from-env" {
		t.Errorf("token = %q, want from-env", p.Token)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing name", `
host: 127.0.0.1
port: 8080
storage: {db_type: sqlite, db_path: x.db}
`},
		{"privileged port", `
name: x
host: 127.0.0.1
port: 80
storage: {db_type: sqlite, db_path: x.db}
`},
		{"sqlite without path", `
name: x
host: 127.0.0.1
port: 8080
storage: {db_type: sqlite}
`},
		{"postgres without connection string", `
name: x
host: 127.0.0.1
port: 8080
storage: {db_type: postgres}
`},
		{"non-websocket provider url", `
name: x
host: 127.0.0.1
port: 8080
storage: {db_type: sqlite, db_path: x.db}
providers:
  - {name: p, url: "https://example.com"}
`},
		{"duplicate provider names", `
name: x
host: 127.0.0.1
port: 8080
storage: {db_type: sqlite, db_path: x.db}
providers:
  - {name: p, url: "wss://a"}
  - {name: p, url: "wss://b"}
`},
		{"widget with unknown provider", `
name: x
host: 127.0.0.1
port: 8080
storage: {db_type: sqlite, db_path: x.db}
widgets:
  - {id: w1, provider: ghost}
`},
	}

	for _, c := range cases {
		if _, err := NewConfig(writeConfig(t, c.yaml)); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	again, err := NewConfig(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.Name != cfg.Name || len(again.Providers) != 1 || again.Providers[0].Token != "abc" {
		t.Errorf("round trip lost data: %+v", again.MConfig)
	}
}
