package style

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// Load reads a style data file. The format follows the extension: ".json"
// and ".json.gz" hold an object of name to nested numeric arrays, anything
// else is read as a NumPy .npz archive with one array per style (the layout
// of the published voices-v1.0.bin).
func Load(filename string) (*Table, error) {
	lower := strings.ToLower(filename)

	var (
		data map[string][]float32
		err  error
	)
	switch {
	case strings.HasSuffix(lower, ".json"):
		data, err = loadJSONFile(filename, false)
	case strings.HasSuffix(lower, ".json.gz"):
		data, err = loadJSONFile(filename, true)
	default:
		data, err = loadNPZ(filename)
	}
	if err != nil {
		return nil, err
	}

	t, err := NewTable(data)
	if err != nil {
		return nil, fmt.Errorf("style data %s: %w", filename, err)
	}
	return t, nil
}

// LoadOrMissing is Load that never fails: an unreadable file yields a Missing
// table so the error surfaces on first resolution instead of at startup.
// A nil logger uses slog.Default.
func LoadOrMissing(filename string, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	t, err := Load(filename)
	if err != nil {
		logger.Warn("style data unavailable; every style lookup will fail", "path", filename, "error", err)
		return Missing(err).WithLogger(logger)
	}
	logger.Debug("style data loaded", "path", filename, "styles", t.Len())
	return t.WithLogger(logger)
}

func loadJSONFile(filename string, gzipped bool) (map[string][]float32, error) {
	f, err := os.Open(filepath.Clean(filename))
	if err != nil {
		return nil, fmt.Errorf("open style data: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if gzipped {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("style data %s: %w", filename, err)
		}
		defer zr.Close()
		r = zr
	}

	data, err := decodeJSON(r)
	if err != nil {
		return nil, fmt.Errorf("style data %s: %w", filename, err)
	}
	return data, nil
}

func decodeJSON(r io.Reader) (map[string][]float32, error) {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	out := make(map[string][]float32, len(raw))
	for name, v := range raw {
		var flat []float32
		if err := flatten(v, &flat); err != nil {
			return nil, fmt.Errorf("style %q: %w", name, err)
		}
		out[name] = flat
	}
	return out, nil
}

func flatten(v any, dst *[]float32) error {
	switch x := v.(type) {
	case float64:
		*dst = append(*dst, float32(x))
	case []any:
		for _, e := range x {
			if err := flatten(e, dst); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unexpected %T in numeric array", v)
	}
	return nil
}

func loadNPZ(filename string) (map[string][]float32, error) {
	zr, err := zip.OpenReader(filepath.Clean(filename))
	if err != nil {
		return nil, fmt.Errorf("open style archive: %w", err)
	}
	defer zr.Close()

	out := make(map[string][]float32, len(zr.File))
	for _, f := range zr.File {
		name := strings.TrimSuffix(path.Base(f.Name), ".npy")
		if name == "" || f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("style %q: %w", name, err)
		}
		arr, err := ReadNPY(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("style %q: %w", name, err)
		}
		out[name] = arr.Data
	}
	if len(out) == 0 {
		return nil, errors.New("style archive contains no arrays")
	}
	return out, nil
}
