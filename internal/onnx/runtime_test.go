package onnx

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/example/go-kokoro-tts/internal/config"
)

func resetRuntimeStateForTest() {
	bootstrapOnce = sync.Once{}
	bootstrapInfo = RuntimeInfo{}
	bootstrapErr = nil
}

func writeFakeLib(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write fake lib: %v", err)
	}
	return p
}

func TestDetectRuntime_ConfigWins(t *testing.T) {
	lib := writeFakeLib(t, "libonnxruntime.so.1.22.0")
	t.Setenv(libEnv, filepath.Join(t.TempDir(), "other.so"))

	info, err := DetectRuntime(config.RuntimeConfig{ORTLibraryPath: lib})
	if err != nil {
		t.Fatalf("DetectRuntime failed: %v", err)
	}
	if info.LibraryPath != lib {
		t.Fatalf("LibraryPath = %q; want %q", info.LibraryPath, lib)
	}
	if info.Version != "1.22.0" {
		t.Fatalf("Version = %q; want inferred 1.22.0", info.Version)
	}
}

func TestDetectRuntime_PrefersKOKOROTTSORTLIB(t *testing.T) {
	lib := writeFakeLib(t, "libonnxruntime.so")
	t.Setenv(libEnv, lib)
	t.Setenv("ORT_LIBRARY_PATH", filepath.Join(t.TempDir(), "does-not-exist"))

	info, err := DetectRuntime(config.RuntimeConfig{ORTVersion: "1.20.1"})
	if err != nil {
		t.Fatalf("DetectRuntime failed: %v", err)
	}
	if info.LibraryPath != lib || info.Version != "1.20.1" {
		t.Fatalf("info = %+v", info)
	}
}

func TestDetectRuntime_MissingPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.so")
	info, err := DetectRuntime(config.RuntimeConfig{ORTLibraryPath: missing})
	if err == nil {
		t.Fatal("want error for missing library")
	}
	if info.LibraryPath != missing {
		t.Fatalf("LibraryPath = %q", info.LibraryPath)
	}
}

func TestBootstrapRunsOnce(t *testing.T) {
	resetRuntimeStateForTest()
	t.Cleanup(resetRuntimeStateForTest)

	lib1 := writeFakeLib(t, "lib1.so")
	lib2 := writeFakeLib(t, "lib2.so")
	t.Setenv(libEnv, "")

	info1, err := Bootstrap(config.RuntimeConfig{ORTLibraryPath: lib1})
	if err != nil {
		t.Fatalf("first bootstrap failed: %v", err)
	}
	info2, err := Bootstrap(config.RuntimeConfig{ORTLibraryPath: lib2})
	if err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}
	if info1.LibraryPath != lib1 || info2.LibraryPath != lib1 {
		t.Fatalf("expected once semantics to keep %q, got %q and %q", lib1, info1.LibraryPath, info2.LibraryPath)
	}
	if !info2.Initialized {
		t.Fatal("Initialized = false")
	}
	if os.Getenv(libEnv) != lib1 {
		t.Fatalf("%s = %q", libEnv, os.Getenv(libEnv))
	}
}
