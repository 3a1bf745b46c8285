package loader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type cdn struct {
	srv   *httptest.Server
	mu    sync.Mutex
	hits  map[string]int
	files map[string][]byte
	delay time.Duration
}

func newCDN(t *testing.T, files map[string][]byte) *cdn {
	t.Helper()
	c := &cdn{hits: make(map[string]int), files: files}
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.hits[r.URL.Path]++
		data, ok := c.files[r.URL.Path]
		delay := c.delay
		c.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *cdn) hitCount(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[path]
}

func resources(dir string, c *cdn) (Resource, Resource) {
	core := Resource{Name: "core", LocalPath: filepath.Join(dir, "python.wasm")}
	stdlib := Resource{Name: "stdlib", LocalPath: filepath.Join(dir, "stdlib.zip")}
	if c != nil {
		core.FallbackURL = c.srv.URL + "/python.wasm"
		stdlib.FallbackURL = c.srv.URL + "/stdlib.zip"
	}
	return core, stdlib
}

func TestLoadPrefersLocalFiles(t *testing.T) {
	dir := t.TempDir()
	c := newCDN(t, map[string][]byte{"/python.wasm": []byte("cdn-core"), "/stdlib.zip": []byte("cdn-stdlib")})
	core, stdlib := resources(dir, c)
	os.WriteFile(core.LocalPath, []byte("local-core"), 0644)
	os.WriteFile(stdlib.LocalPath, []byte("local-stdlib"), 0644)

	l := New(core, stdlib, WithLogger(quietLogger))
	b, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(b.Core) != "local-core" || string(b.Stdlib) != "local-stdlib" {
		t.Errorf("unexpected bundle %q %q", b.Core, b.Stdlib)
	}
	if c.hitCount("/python.wasm")+c.hitCount("/stdlib.zip") != 0 {
		t.Error("cdn should not be contacted when local files exist")
	}
	if b.Origins["core"] != "local" {
		t.Errorf("core origin = %q", b.Origins["core"])
	}
}

func TestLoadFallsBackToCDNPerResource(t *testing.T) {
	dir := t.TempDir()
	c := newCDN(t, map[string][]byte{"/python.wasm": []byte("cdn-core"), "/stdlib.zip": []byte("cdn-stdlib")})
	core, stdlib := resources(dir, c)
	os.WriteFile(stdlib.LocalPath, []byte("local-stdlib"), 0644)

	l := New(core, stdlib, WithLogger(quietLogger))
	b, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(b.Core) != "cdn-core" {
		t.Errorf("core = %q, want cdn copy", b.Core)
	}
	if string(b.Stdlib) != "local-stdlib" {
		t.Errorf("stdlib = %q, want local copy", b.Stdlib)
	}
	if c.hitCount("/stdlib.zip") != 0 {
		t.Error("stdlib fetched from cdn although local copy exists")
	}
}

func TestLoadBothLocalMissing(t *testing.T) {
	dir := t.TempDir()
	c := newCDN(t, map[string][]byte{"/python.wasm": []byte("cdn-core"), "/stdlib.zip": []byte("cdn-stdlib")})
	core, stdlib := resources(dir, c)

	l := New(core, stdlib, WithLogger(quietLogger))
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.hitCount("/python.wasm") != 1 || c.hitCount("/stdlib.zip") != 1 {
		t.Errorf("expected one cdn hit per resource, got core=%d stdlib=%d",
			c.hitCount("/python.wasm"), c.hitCount("/stdlib.zip"))
	}

	// Downloads are cached locally.
	data, err := os.ReadFile(core.LocalPath)
	if err != nil || string(data) != "cdn-core" {
		t.Errorf("local cache = %q, %v", data, err)
	}
}

func TestLoadFailsWhenOneResourceMissingEverywhere(t *testing.T) {
	dir := t.TempDir()
	c := newCDN(t, map[string][]byte{"/python.wasm": []byte("cdn-core")})
	core, stdlib := resources(dir, c)

	l := New(core, stdlib, WithLogger(quietLogger))
	_, err := l.Load(context.Background())
	if err == nil {
		t.Fatal("expected error when stdlib is unavailable")
	}
	if !strings.Contains(err.Error(), "stdlib") {
		t.Errorf("error should name the failing resource: %v", err)
	}
	if l.Ready() {
		t.Error("loader must not be ready when a resource failed")
	}
	if l.Err() == nil {
		t.Error("Err() should report the failure")
	}
	if _, err := l.Bundle(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Bundle() error = %v, want ErrNotReady", err)
	}
}

func TestLoadRequiresValidator(t *testing.T) {
	dir := t.TempDir()
	c := newCDN(t, map[string][]byte{"/python.wasm": []byte("core"), "/stdlib.zip": []byte("stdlib")})
	core, stdlib := resources(dir, c)

	l := New(core, stdlib, WithLogger(quietLogger), WithValidator(func(ctx context.Context, b *Bundle) error {
		return errors.New("entry point _start not exported")
	}))
	_, err := l.Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "_start") {
		t.Fatalf("expected validator error, got %v", err)
	}
	if l.Ready() {
		t.Error("loader ready despite failed validation")
	}
}

func TestLoadTimeout(t *testing.T) {
	dir := t.TempDir()
	c := newCDN(t, map[string][]byte{"/python.wasm": []byte("core"), "/stdlib.zip": []byte("stdlib")})
	c.delay = 2 * time.Second
	core, stdlib := resources(dir, c)

	l := New(core, stdlib, WithLogger(quietLogger), WithTimeout(100*time.Millisecond))
	start := time.Now()
	_, err := l.Load(context.Background())
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("load took %v, timeout not enforced", time.Since(start))
	}
}

func TestLoadDecodesZstd(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	enc, _ := zstd.NewWriter(&buf)
	enc.Write([]byte("decompressed-core"))
	enc.Close()

	c := newCDN(t, map[string][]byte{"/python.wasm.zst": buf.Bytes(), "/stdlib.zip": []byte("stdlib")})
	core, stdlib := resources(dir, c)
	core.FallbackURL = c.srv.URL + "/python.wasm.zst"

	l := New(core, stdlib, WithLogger(quietLogger))
	b, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(b.Core) != "decompressed-core" {
		t.Errorf("core = %q", b.Core)
	}
}

func TestConcurrentLoadsShareOneAttempt(t *testing.T) {
	dir := t.TempDir()
	c := newCDN(t, map[string][]byte{"/python.wasm": []byte("core"), "/stdlib.zip": []byte("stdlib")})
	c.delay = 50 * time.Millisecond
	core, stdlib := resources(dir, c)

	l := New(core, stdlib, WithLogger(quietLogger), WithWriteBack(false))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Load(context.Background()); err != nil {
				t.Errorf("Load failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := c.hitCount("/python.wasm"); n != 1 {
		t.Errorf("core downloaded %d times, want 1", n)
	}
}

func TestInvalidatePrefersCDN(t *testing.T) {
	dir := t.TempDir()
	c := newCDN(t, map[string][]byte{"/python.wasm": []byte("fresh-core"), "/stdlib.zip": []byte("fresh-stdlib")})
	core, stdlib := resources(dir, c)
	os.WriteFile(core.LocalPath, []byte("stale-core"), 0644)
	os.WriteFile(stdlib.LocalPath, []byte("stale-stdlib"), 0644)

	l := New(core, stdlib, WithLogger(quietLogger))
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	l.Invalidate()
	if l.Ready() {
		t.Fatal("Ready after Invalidate")
	}
	b, err := l.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(b.Stdlib) != "fresh-stdlib" {
		t.Errorf("stdlib after invalidate = %q, want cdn copy", b.Stdlib)
	}
	data, _ := os.ReadFile(stdlib.LocalPath)
	if string(data) != "fresh-stdlib" {
		t.Errorf("local stdlib not replaced: %q", data)
	}
}

func TestWarmRetriesOnceAfterDelay(t *testing.T) {
	dir := t.TempDir()
	c := newCDN(t, map[string][]byte{"/python.wasm": []byte("core"), "/stdlib.zip": []byte("stdlib")})
	core, stdlib := resources(dir, c)

	var attempts atomic.Int32
	l := New(core, stdlib,
		WithLogger(quietLogger),
		WithRecheckDelay(50*time.Millisecond),
		WithValidator(func(ctx context.Context, b *Bundle) error {
			if attempts.Add(1) == 1 {
				return errors.New("global entry point missing")
			}
			return nil
		}))

	done := l.Warm(context.Background())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recheck never ran")
	}

	if !l.Ready() {
		t.Fatalf("loader not ready after recheck: %v", l.Err())
	}
	if n := attempts.Load(); n != 2 {
		t.Errorf("validator ran %d times, want 2", n)
	}
}

func TestFetchDownloadsBothResources(t *testing.T) {
	dir := t.TempDir()
	c := newCDN(t, map[string][]byte{"/python.wasm": []byte("core"), "/stdlib.zip": []byte("stdlib")})
	core, stdlib := resources(dir, c)

	l := New(core, stdlib, WithLogger(quietLogger))
	if err := l.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	for path, want := range map[string]string{core.LocalPath: "core", stdlib.LocalPath: "stdlib"} {
		data, err := os.ReadFile(path)
		if err != nil || string(data) != want {
			t.Errorf("%s = %q, %v", path, data, err)
		}
	}
}
