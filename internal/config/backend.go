package config

import (
	"fmt"
	"strings"
)

const (
	BackendCPU         = "cpu"
	BackendAccelerated = "accelerated"
)

func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendCPU
	}
	switch backend {
	case BackendCPU, BackendAccelerated:
		return backend, nil
	case "gpu", "cuda":
		return BackendAccelerated, nil
	default:
		return "", fmt.Errorf("invalid backend %q (expected %s|%s)", raw, BackendCPU, BackendAccelerated)
	}
}

const (
	LogCLI  = "cli"
	LogFile = "file"
	LogAll  = "all"
	LogNone = "none"
)

func NormalizeLogDestination(raw string) (string, error) {
	dest := strings.ToLower(strings.TrimSpace(raw))
	if dest == "" {
		dest = LogCLI
	}
	switch dest {
	case LogCLI, LogFile, LogAll, LogNone:
		return dest, nil
	default:
		return "", fmt.Errorf("invalid log destination %q (expected %s|%s|%s|%s)", raw, LogCLI, LogFile, LogAll, LogNone)
	}
}
