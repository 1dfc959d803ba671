// Package doctor provides environment preflight checks for kokorotts.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// RuntimeFunc locates the ONNX Runtime library and reports its version.
type RuntimeFunc func() (path, version string, err error)

// VoicesFunc loads a voices data file and returns how many styles it holds.
type VoicesFunc func(path string) (int, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// EspeakVersion returns the first line of `espeak-ng --version`.
	EspeakVersion VersionFunc
	// Runtime locates the ONNX Runtime shared library.
	Runtime RuntimeFunc
	// MinORTMinor is the lowest 1.x ONNX Runtime release providing the
	// configured C API version. Zero skips the version check.
	MinORTMinor int
	// ModelPath is the ONNX model file to verify on disk.
	ModelPath string
	// VoicesPath is the voices data file to load with LoadVoices.
	VoicesPath string
	LoadVoices VoicesFunc
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark. Checks whose
// dependency is nil are skipped.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- espeak-ng --------------------------------------------------------
	if cfg.EspeakVersion != nil {
		ver, err := cfg.EspeakVersion()
		if err != nil {
			res.fail(fmt.Sprintf("espeak-ng: %v", err))
			fmt.Fprintf(w, "%s espeak-ng: not found (%v)\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s espeak-ng: %s\n", PassMark, ver)
		}
	}

	// ---- ONNX Runtime -----------------------------------------------------
	if cfg.Runtime != nil {
		path, ver, err := cfg.Runtime()
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("onnx runtime: %v", err))
			fmt.Fprintf(w, "%s onnx runtime: %v\n", FailMark, err)
		default:
			if verErr := checkORTVersion(ver, cfg.MinORTMinor); verErr != nil {
				res.fail(fmt.Sprintf("onnx runtime version: %v", verErr))
				fmt.Fprintf(w, "%s onnx runtime %s (%s): %v\n", FailMark, ver, path, verErr)
			} else {
				fmt.Fprintf(w, "%s onnx runtime: %s (%s)\n", PassMark, path, ver)
			}
		}
	}

	// ---- model file -------------------------------------------------------
	if cfg.ModelPath != "" {
		if fi, err := os.Stat(cfg.ModelPath); err != nil {
			res.fail(fmt.Sprintf("model file %q: %v", cfg.ModelPath, err))
			fmt.Fprintf(w, "%s model file %s: not found\n", FailMark, cfg.ModelPath)
		} else if fi.IsDir() {
			res.fail(fmt.Sprintf("model file %q: is a directory", cfg.ModelPath))
			fmt.Fprintf(w, "%s model file %s: is a directory\n", FailMark, cfg.ModelPath)
		} else {
			fmt.Fprintf(w, "%s model file: %s\n", PassMark, cfg.ModelPath)
		}
	}

	// ---- voices data ------------------------------------------------------
	if cfg.VoicesPath != "" && cfg.LoadVoices != nil {
		n, err := cfg.LoadVoices(cfg.VoicesPath)
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("voices file %q: %v", cfg.VoicesPath, err))
			fmt.Fprintf(w, "%s voices file %s: %v\n", FailMark, cfg.VoicesPath, err)
		case n == 0:
			res.fail(fmt.Sprintf("voices file %q: no styles", cfg.VoicesPath))
			fmt.Fprintf(w, "%s voices file %s: no styles\n", FailMark, cfg.VoicesPath)
		default:
			fmt.Fprintf(w, "%s voices file: %s (%d styles)\n", PassMark, cfg.VoicesPath, n)
		}
	}

	return res
}

// checkORTVersion returns an error if ver is a 1.x release older than
// 1.minMinor. Unknown versions pass.
func checkORTVersion(ver string, minMinor int) error {
	if minMinor <= 0 || ver == "" || ver == "unknown" {
		return nil
	}
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major == 1 && minor < minMinor {
		return fmt.Errorf("requires ONNX Runtime >=1.%d, got %s", minMinor, ver)
	}
	if major < 1 {
		return fmt.Errorf("requires ONNX Runtime 1.x, got %s", ver)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
