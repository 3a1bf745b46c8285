package config

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.toml")
	os.WriteFile(path, []byte(`
[interpreter]
run_timeout = "2s"
memory_mb = 64

[api]
base_url = "https://contest.example/api/"

[store]
backend = "file"
dir = "/tmp/buffers"
`), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Interpreter.RunTimeout.Std() != 2*time.Second || cfg.Interpreter.MemoryMB != 64 {
		t.Errorf("interpreter = %+v", cfg.Interpreter)
	}
	if cfg.API.BaseURL != "https://contest.example/api/" {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Store.Backend != "file" || cfg.Store.Dir != "/tmp/buffers" {
		t.Errorf("store = %+v", cfg.Store)
	}
	// Untouched sections keep defaults.
	if cfg.Interpreter.LoadTimeout.Std() != 10*time.Second {
		t.Errorf("load timeout = %v", cfg.Interpreter.LoadTimeout.Std())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Backend != "memory" || cfg.Server.Addr != ":8080" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ARENA_API_TOKEN":   "secret",
		"ARENA_RUN_TIMEOUT": "750ms",
		"ARENA_REDIS_DB":    "3",
		"ARENA_STORE":       "redis",
		"ARENA_REDIS_ADDR":  "localhost:6379",
		"ARENA_SESSION_TTL": "90s",
	}
	cfg := Default()
	err := applyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.Token != "secret" || cfg.Interpreter.RunTimeout.Std() != 750*time.Millisecond || cfg.Store.RedisDB != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := cfg.Server.SessionTTL.Std(); got != 90*time.Second {
		t.Errorf("session ttl = %v, want 90s", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, func(k string) (string, bool) {
		if k == "ARENA_RUN_TIMEOUT" {
			return "soon", true
		}
		return "", false
	})
	if err == nil {
		t.Error("expected error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Error("redis without address accepted")
	}
	cfg = Default()
	cfg.Store.Backend = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown backend accepted")
	}
	cfg = Default()
	cfg.Interpreter.CorePath, cfg.Interpreter.CoreURL = "", ""
	if err := cfg.Validate(); err == nil {
		t.Error("core without source accepted")
	}
}

func TestDefaultArtifactsShareOneRelease(t *testing.T) {
	core, err := url.Parse(DefaultCoreURL)
	if err != nil {
		t.Fatal(err)
	}
	stdlib, err := url.Parse(DefaultStdlibURL)
	if err != nil {
		t.Fatal(err)
	}
	if path.Dir(core.Path) != path.Dir(stdlib.Path) {
		t.Errorf("core and stdlib come from different releases: %s, %s", core.Path, stdlib.Path)
	}
	if !strings.HasSuffix(path.Dir(core.Path), "/python/3.12.0+20231211-040d5a6") {
		t.Errorf("unexpected release %s", path.Dir(core.Path))
	}
	// The loader gunzips by extension.
	if path.Ext(stdlib.Path) != ".gz" {
		t.Errorf("stdlib URL %s is not gzip", stdlib.Path)
	}
}
