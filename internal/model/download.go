// Package model fetches the Kokoro model and voices data files.
package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ErrMissing is returned by Ensure when a file is absent and downloading is
// disabled.
var ErrMissing = errors.New("file missing")

// File is a local asset and where to fetch it from.
type File struct {
	Path string
	URL  string
	// SHA256, when set, must match the downloaded content.
	SHA256 string
}

type DownloadOptions struct {
	Client *http.Client
	Stdout io.Writer
	// Force downloads even when the file exists with a matching checksum.
	Force bool
}

type ErrAccessDenied struct {
	URL    string
	Status string
}

func (e *ErrAccessDenied) Error() string {
	return fmt.Sprintf("access denied for %s: %s", e.URL, e.Status)
}

// Ensure returns nil when f.Path exists. Otherwise it downloads f when
// autoDownload is set, or fails with ErrMissing.
func Ensure(ctx context.Context, f File, autoDownload bool, opts DownloadOptions) error {
	fi, err := os.Stat(f.Path)
	switch {
	case err == nil && fi.IsDir():
		return fmt.Errorf("expected file at %s, found directory", f.Path)
	case err == nil:
		return nil
	case !os.IsNotExist(err):
		return fmt.Errorf("stat %s: %w", f.Path, err)
	}

	if !autoDownload {
		return fmt.Errorf("%w: %s (run \"kokorotts model download\" or pass --auto-download)", ErrMissing, f.Path)
	}
	_, err = Download(ctx, f, opts)
	return err
}

// Download fetches f.URL into f.Path through a temporary file and returns
// the SHA-256 of the content. An existing file whose checksum matches
// f.SHA256 is kept unless opts.Force is set.
func Download(ctx context.Context, f File, opts DownloadOptions) (string, error) {
	if f.URL == "" {
		return "", fmt.Errorf("no download URL for %s", f.Path)
	}
	if f.Path == "" {
		return "", errors.New("download path is required")
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 0}
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	expected := strings.ToLower(f.SHA256)

	if expected != "" && !opts.Force {
		if ok, err := existingMatches(f.Path, expected); err != nil {
			return "", err
		} else if ok {
			fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", f.Path)
			return expected, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return "", fmt.Errorf("create local dir: %w", err)
	}

	fmt.Fprintf(opts.Stdout, "download %s -> %s\n", f.URL, f.Path)
	actual, err := downloadWithProgress(ctx, opts.Client, f.URL, f.Path, opts.Stdout)
	if err != nil {
		return "", err
	}
	if expected != "" && actual != expected {
		_ = os.Remove(f.Path)
		return "", fmt.Errorf("checksum mismatch for %s: expected %s got %s", f.Path, expected, actual)
	}
	fmt.Fprintf(opts.Stdout, "saved %s (sha256=%s)\n", f.Path, actual)
	return actual, nil
}

func existingMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat existing file: %w", err)
	}
	if fi.IsDir() {
		return false, fmt.Errorf("expected file at %s, found directory", path)
	}
	actual, err := fileSHA256(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

func downloadWithProgress(ctx context.Context, client *http.Client, url, outPath string, stdout io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &ErrAccessDenied{URL: url, Status: resp.Status}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download failed for %s: %s", url, resp.Status)
	}

	tmp := outPath + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	mw := io.MultiWriter(fh, h)

	var written uint64
	buf := make([]byte, 64*1024)
	total := resp.ContentLength
	lastPrint := time.Now()
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			wn, writeErr := mw.Write(buf[:n])
			if writeErr != nil {
				_ = fh.Close()
				_ = os.Remove(tmp)
				return "", fmt.Errorf("write temp file: %w", writeErr)
			}
			written += uint64(wn)
			if time.Since(lastPrint) > 700*time.Millisecond {
				if total > 0 {
					pct := float64(written) * 100 / float64(total)
					fmt.Fprintf(stdout, "  progress: %.1f%% (%s / %s)\n", pct, humanize.Bytes(written), humanize.Bytes(uint64(total)))
				} else {
					fmt.Fprintf(stdout, "  progress: %s\n", humanize.Bytes(written))
				}
				lastPrint = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = fh.Close()
			_ = os.Remove(tmp)
			return "", fmt.Errorf("download read failed: %w", readErr)
		}
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move temp file into place: %w", err)
	}
	fmt.Fprintf(stdout, "  done: %s\n", humanize.Bytes(written))

	return hex.EncodeToString(h.Sum(nil)), nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
