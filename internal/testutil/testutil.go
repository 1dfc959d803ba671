// Package testutil provides shared skip helpers, fakes and assertions for
// tests.
//
// Each Require helper calls Skipf with a human-readable reason when the named
// prerequisite is absent, so integration tests stay runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    lib := testutil.RequireONNXRuntime(t)
//	    model, voices := testutil.RequireModelFiles(t)
//	    ...
//	}
package testutil

import (
	"os"
	"os/exec"
	"testing"
)

// RequireESpeak skips the test if espeak-ng is not in PATH.
func RequireESpeak(tb testing.TB) {
	tb.Helper()

	if _, err := exec.LookPath("espeak-ng"); err != nil {
		tb.Skipf("espeak-ng not available in PATH: %v", err)
	}
}

// RequireONNXRuntime returns the ONNX Runtime library path or skips the test.
// It checks (in order): KOKOROTTS_ORT_LIB, ORT_LIBRARY_PATH, then common
// system library paths.
func RequireONNXRuntime(tb testing.TB) string {
	tb.Helper()

	for _, env := range []string{"KOKOROTTS_ORT_LIB", "ORT_LIBRARY_PATH"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p
			}
			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)
			return ""
		}
	}

	for _, p := range []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	tb.Skipf("ONNX Runtime shared library not found; set KOKOROTTS_ORT_LIB or ORT_LIBRARY_PATH")
	return ""
}

// RequireModelFiles returns the model and voices paths named by
// KOKOROTTS_MODEL and KOKOROTTS_DATA, or skips the test.
func RequireModelFiles(tb testing.TB) (model, voices string) {
	tb.Helper()

	model = os.Getenv("KOKOROTTS_MODEL")
	voices = os.Getenv("KOKOROTTS_DATA")
	if model == "" || voices == "" {
		tb.Skipf("set KOKOROTTS_MODEL and KOKOROTTS_DATA to run model tests")
		return "", ""
	}
	for _, p := range []string{model, voices} {
		if _, err := os.Stat(p); err != nil {
			tb.Skipf("model file unavailable: %v", err)
			return "", ""
		}
	}
	return model, voices
}
