// Package style holds the voice style table and resolves style
// specifications ("af_sarah" or "af_sarah.4+af_nicole.6") into conditioning
// vectors.
package style

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
)

// Dim is the width of one style vector.
const Dim = 256

var (
	// ErrUnknownStyle is returned when a bare style name is not in the table.
	ErrUnknownStyle = errors.New("unknown style")
	// ErrStyleDataMissing is returned by every resolution on a table whose
	// data file could not be loaded.
	ErrStyleDataMissing = errors.New("style data missing")
)

// Table maps style names to per-position vectors of Dim floats. It is
// immutable after construction and safe for concurrent use.
type Table struct {
	styles  map[string][][]float32
	loadErr error
	logger  *slog.Logger
}

// NewTable builds a table from flattened style data. Each value must hold a
// non-zero multiple of Dim floats; position i is values[i*Dim:(i+1)*Dim].
func NewTable(data map[string][]float32) (*Table, error) {
	t := &Table{styles: make(map[string][][]float32, len(data))}
	for name, flat := range data {
		if name == "" {
			return nil, errors.New("style table: empty style name")
		}
		if len(flat) == 0 || len(flat)%Dim != 0 {
			return nil, fmt.Errorf("style %q: %d values is not a multiple of %d", name, len(flat), Dim)
		}
		rows := make([][]float32, len(flat)/Dim)
		for i := range rows {
			rows[i] = slices.Clone(flat[i*Dim : (i+1)*Dim])
		}
		t.styles[name] = rows
	}
	return t, nil
}

// Missing returns a table that fails every resolution with
// ErrStyleDataMissing, wrapping cause.
func Missing(cause error) *Table {
	return &Table{styles: map[string][][]float32{}, loadErr: cause}
}

// WithLogger returns a table sharing t's data that reports skipped blend
// members to logger.
func (t *Table) WithLogger(logger *slog.Logger) *Table {
	c := *t
	c.logger = logger
	return &c
}

func (t *Table) log() *slog.Logger {
	if t.logger == nil {
		return slog.Default()
	}
	return t.logger
}

// Err returns the load error for a Missing table, or nil.
func (t *Table) Err() error {
	return t.loadErr
}

// Len returns the number of styles.
func (t *Table) Len() int {
	return len(t.styles)
}

// Names returns all style names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.styles))
	for name := range t.styles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether name is a known style.
func (t *Table) Has(name string) bool {
	_, ok := t.styles[name]
	return ok
}

// Positions returns how many per-length vectors a style carries.
func (t *Table) Positions(name string) int {
	return len(t.styles[name])
}

// Resolve turns a style specification into a vector of Dim floats.
//
// A spec without '+' is an exact name lookup and fails with ErrUnknownStyle.
// Otherwise each '+'-separated segment is split at its first '.' into a name
// and a weight in tenths ("4" is 0.4). Segments whose weight does not parse
// are skipped. Unknown names inside a blend contribute nothing; a warning is
// logged for each. Weights are not normalized.
func (t *Table) Resolve(spec string) ([]float32, error) {
	if t.loadErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrStyleDataMissing, t.loadErr)
	}

	if !strings.Contains(spec, "+") {
		rows, ok := t.styles[spec]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownStyle, spec)
		}
		return slices.Clone(rows[0]), nil
	}

	out := make([]float32, Dim)
	for _, part := range ParseBlend(spec) {
		rows, ok := t.styles[part.Name]
		if !ok {
			t.log().Warn("blend references unknown style; contributing zero", "style", part.Name, "spec", spec)
			continue
		}
		for i, v := range rows[0] {
			out[i] += v * part.Weight
		}
	}
	return out, nil
}

// Component is one weighted member of a blended style.
type Component struct {
	Name   string
	Weight float32
}

// ParseBlend parses the '+'-separated segments of spec. Segments without a
// '.' or with an unparseable weight are dropped.
func ParseBlend(spec string) []Component {
	var parts []Component
	for _, seg := range strings.Split(spec, "+") {
		name, digits, ok := strings.Cut(seg, ".")
		if !ok {
			continue
		}
		w, err := strconv.ParseFloat(digits, 32)
		if err != nil {
			continue
		}
		parts = append(parts, Component{Name: name, Weight: float32(w) * 0.1})
	}
	return parts
}
