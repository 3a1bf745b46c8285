package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const originLocal = "local"

// fetch loads one resource, local path first unless remoteFirst is set.
func (l *Loader) fetch(ctx context.Context, r Resource, remoteFirst bool) ([]byte, string, error) {
	if remoteFirst && r.FallbackURL != "" {
		data, err := l.download(ctx, r)
		if err == nil {
			return data, r.FallbackURL, nil
		}
		l.cfg.logger.Warn("cdn fetch failed, trying local copy", "resource", r.Name, "error", err)
	}

	localErr := errors.New("no local path")
	if r.LocalPath != "" {
		data, err := os.ReadFile(r.LocalPath)
		if err == nil && len(data) > 0 {
			return data, originLocal, nil
		}
		if err == nil {
			err = fmt.Errorf("%s is empty", r.LocalPath)
		}
		localErr = err
	}

	if r.FallbackURL == "" || remoteFirst {
		return nil, "", fmt.Errorf("load %s: %w", r.Name, localErr)
	}

	l.cfg.logger.Debug("local resource unavailable, using cdn", "resource", r.Name, "error", localErr)
	data, err := l.download(ctx, r)
	if err != nil {
		return nil, "", fmt.Errorf("load %s: local: %v; cdn: %w", r.Name, localErr, err)
	}
	return data, r.FallbackURL, nil
}

func (l *Loader) download(ctx context.Context, r Resource) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.FallbackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := l.cfg.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", r.FallbackURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: %s", r.FallbackURL, resp.Status)
	}

	body, err := decoder(r.FallbackURL, resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.FallbackURL, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download %s: empty body", r.FallbackURL)
	}

	if l.cfg.writeBack && r.LocalPath != "" {
		if err := writeFile(r.LocalPath, data); err != nil {
			l.cfg.logger.Warn("failed to cache resource locally", "resource", r.Name, "path", r.LocalPath, "error", err)
		}
	}
	return data, nil
}

// decoder unwraps zstd or gzip compressed downloads based on the URL
// extension or content type.
func decoder(rawURL string, resp *http.Response) (io.ReadCloser, error) {
	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		ext = filepath.Ext(u.Path)
	}
	contentType := resp.Header.Get("Content-Type")

	switch {
	case ext == ".zst" || contentType == "application/zstd":
		d, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return d.IOReadCloser(), nil
	case ext == ".gz" || contentType == "application/gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gz, nil
	}
	return io.NopCloser(resp.Body), nil
}

// writeFile writes atomically so a concurrent reader never sees a partial file.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Fetch downloads both resources from the CDN into their local paths,
// replacing existing copies.
func (l *Loader) Fetch(ctx context.Context) error {
	for _, r := range []Resource{l.core, l.stdlib} {
		if r.FallbackURL == "" || r.LocalPath == "" {
			return fmt.Errorf("fetch %s: both a local path and a cdn url are required", r.Name)
		}
		if !l.cfg.writeBack {
			return fmt.Errorf("fetch %s: write-back disabled", r.Name)
		}
		if _, err := l.download(ctx, r); err != nil {
			return fmt.Errorf("fetch %s: %w", r.Name, err)
		}
		l.cfg.logger.Info("resource fetched", "resource", r.Name, "path", r.LocalPath)
	}
	return nil
}

// Describe returns a short human readable summary of a resource.
func (r Resource) Describe() string {
	parts := []string{r.Name}
	if r.LocalPath != "" {
		parts = append(parts, "local="+r.LocalPath)
	}
	if r.FallbackURL != "" {
		parts = append(parts, "cdn="+r.FallbackURL)
	}
	return strings.Join(parts, " ")
}
