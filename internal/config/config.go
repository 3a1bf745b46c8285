// Package config loads arena settings from a TOML file, a .env file and
// ARENA_* environment variables, in increasing order of precedence.
// Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// pythonRelease is the webassembly-language-runtimes CPython 3.12 WASI build.
const pythonRelease = "https://github.com/vmware-labs/webassembly-language-runtimes/releases/download/python%2F3.12.0%2B20231211-040d5a6/"

// Release artifacts the interpreter falls back to when local copies are
// missing. The stdlib tarball is gunzipped on download and served from the
// directory holding os.py.
const (
	DefaultCoreURL   = pythonRelease + "python-3.12.0.wasm"
	DefaultStdlibURL = pythonRelease + "python-3.12.0-wasi-sdk-20.0.tar.gz"
)

// Duration reads Go duration strings such as "1s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Interpreter struct {
	CorePath     string   `toml:"core_path"`
	CoreURL      string   `toml:"core_url"`
	StdlibPath   string   `toml:"stdlib_path"`
	StdlibURL    string   `toml:"stdlib_url"`
	LoadTimeout  Duration `toml:"load_timeout"`
	RunTimeout   Duration `toml:"run_timeout"`
	MemoryMB     uint32   `toml:"memory_mb"`
	DiskCache    bool     `toml:"disk_cache"`
	CacheDir     string   `toml:"cache_dir"`
	MaxOutputKiB int      `toml:"max_output_kib"`
}

type API struct {
	BaseURL string   `toml:"base_url"`
	Token   string   `toml:"token"`
	Timeout Duration `toml:"timeout"`
}

type Store struct {
	// Backend is memory, file or redis.
	Backend       string   `toml:"backend"`
	Dir           string   `toml:"dir"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	TTL           Duration `toml:"ttl"`
}

type Server struct {
	Addr      string `toml:"addr"`
	JWTSecret string `toml:"jwt_secret"`

	// QuestionsDir serves questions from local TOML files instead of the
	// contest API.
	QuestionsDir string   `toml:"questions_dir"`
	ForwardToken bool     `toml:"forward_token"`
	SessionTTL   Duration `toml:"session_ttl"`
}

type Activity struct {
	NATSURL string `toml:"nats_url"`
	Subject string `toml:"subject"`
}

type Autosave struct {
	Delay Duration `toml:"delay"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full settings tree.
type Config struct {
	Log         Log         `toml:"log"`
	Interpreter Interpreter `toml:"interpreter"`
	API         API         `toml:"api"`
	Store       Store       `toml:"store"`
	Server      Server      `toml:"server"`
	Activity    Activity    `toml:"activity"`
	Autosave    Autosave    `toml:"autosave"`
}

// Default returns the built-in settings.
func Default() Config {
	dataDir := defaultDataDir()
	return Config{
		Log: Log{Level: "info", Format: "text"},
		Interpreter: Interpreter{
			CorePath:     filepath.Join(dataDir, "python-3.12.0.wasm"),
			CoreURL:      DefaultCoreURL,
			StdlibPath:   filepath.Join(dataDir, "python-3.12.0-stdlib.tar"),
			StdlibURL:    DefaultStdlibURL,
			LoadTimeout:  Duration(10 * time.Second),
			RunTimeout:   Duration(5 * time.Second),
			MemoryMB:     256,
			DiskCache:    true,
			MaxOutputKiB: 1024,
		},
		API: API{
			BaseURL: "http://127.0.0.1:8000/",
			Timeout: Duration(15 * time.Second),
		},
		Store: Store{
			Backend: "memory",
			Dir:     filepath.Join(dataDir, "buffers"),
		},
		Server: Server{Addr: ":8080", SessionTTL: Duration(30 * time.Minute)},
		Activity: Activity{
			Subject: "arena.activity",
		},
		Autosave: Autosave{Delay: Duration(time.Second)},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "codearena")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "codearena")
	}
	return filepath.Join(os.TempDir(), "codearena")
}

// Load reads path (skipped when empty or missing), then .env, then the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("ARENA_LOG_LEVEL", &cfg.Log.Level)
	str("ARENA_LOG_FORMAT", &cfg.Log.Format)
	str("ARENA_PYTHON_WASM", &cfg.Interpreter.CorePath)
	str("ARENA_PYTHON_WASM_URL", &cfg.Interpreter.CoreURL)
	str("ARENA_PYTHON_STDLIB", &cfg.Interpreter.StdlibPath)
	str("ARENA_PYTHON_STDLIB_URL", &cfg.Interpreter.StdlibURL)
	dur("ARENA_LOAD_TIMEOUT", &cfg.Interpreter.LoadTimeout)
	dur("ARENA_RUN_TIMEOUT", &cfg.Interpreter.RunTimeout)
	str("ARENA_CACHE_DIR", &cfg.Interpreter.CacheDir)
	str("ARENA_API_URL", &cfg.API.BaseURL)
	str("ARENA_API_TOKEN", &cfg.API.Token)
	str("ARENA_STORE", &cfg.Store.Backend)
	str("ARENA_STORE_DIR", &cfg.Store.Dir)
	str("ARENA_REDIS_ADDR", &cfg.Store.RedisAddr)
	str("ARENA_REDIS_PASSWORD", &cfg.Store.RedisPassword)
	num("ARENA_REDIS_DB", &cfg.Store.RedisDB)
	str("ARENA_ADDR", &cfg.Server.Addr)
	str("ARENA_JWT_SECRET", &cfg.Server.JWTSecret)
	str("ARENA_QUESTIONS_DIR", &cfg.Server.QuestionsDir)
	dur("ARENA_SESSION_TTL", &cfg.Server.SessionTTL)
	str("ARENA_NATS_URL", &cfg.Activity.NATSURL)
	dur("ARENA_AUTOSAVE_DELAY", &cfg.Autosave.Delay)

	return errors.Join(errs...)
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "file":
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.New("config: store.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Interpreter.CorePath == "" && c.Interpreter.CoreURL == "" {
		return errors.New("config: interpreter core needs a path or a URL")
	}
	if c.Interpreter.StdlibPath == "" && c.Interpreter.StdlibURL == "" {
		return errors.New("config: interpreter stdlib needs a path or a URL")
	}
	return nil
}
