package style

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

// Array is a decoded little-endian float NumPy array.
type Array struct {
	Shape []int
	Data  []float32
}

// ReadNPY decodes a C-ordered '<f4' or '<f8' .npy stream. Float64 data is
// narrowed to float32.
func ReadNPY(r io.Reader) (*Array, error) {
	br := bufio.NewReader(r)

	var pre [8]byte
	if _, err := io.ReadFull(br, pre[:]); err != nil {
		return nil, fmt.Errorf("npy preamble: %w", err)
	}
	if string(pre[:6]) != string(npyMagic) {
		return nil, errors.New("npy: bad magic")
	}

	var headerLen int
	switch pre[6] {
	case 1:
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("npy header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("npy header length: %w", err)
		}
		headerLen = int(n)
	default:
		return nil, fmt.Errorf("npy: unsupported version %d.%d", pre[6], pre[7])
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("npy header: %w", err)
	}
	descr, fortran, shape, err := parseNPYHeader(string(header))
	if err != nil {
		return nil, err
	}
	if fortran {
		return nil, errors.New("npy: fortran order not supported")
	}

	count := 1
	for _, d := range shape {
		count *= d
	}

	data := make([]float32, count)
	switch descr {
	case "<f4":
		if err := binary.Read(br, binary.LittleEndian, data); err != nil {
			return nil, fmt.Errorf("npy data: %w", err)
		}
	case "<f8":
		buf := make([]byte, 8*count)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("npy data: %w", err)
		}
		for i := range data {
			data[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:])))
		}
	default:
		return nil, fmt.Errorf("npy: unsupported dtype %q", descr)
	}

	return &Array{Shape: shape, Data: data}, nil
}

// parseNPYHeader reads the Python dict literal that describes the array,
// e.g. {'descr': '<f4', 'fortran_order': False, 'shape': (510, 1, 256), }.
func parseNPYHeader(h string) (descr string, fortran bool, shape []int, err error) {
	descr, err = headerValue(h, "descr")
	if err != nil {
		return "", false, nil, err
	}
	descr = strings.Trim(descr, `'"`)

	fo, err := headerValue(h, "fortran_order")
	if err != nil {
		return "", false, nil, err
	}
	fortran = fo == "True"

	i := strings.Index(h, "'shape'")
	if i < 0 {
		return "", false, nil, errors.New("npy header: missing shape")
	}
	open := strings.IndexByte(h[i:], '(')
	closing := strings.IndexByte(h[i:], ')')
	if open < 0 || closing < open {
		return "", false, nil, errors.New("npy header: malformed shape")
	}
	for _, f := range strings.Split(h[i+open+1:i+closing], ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return "", false, nil, fmt.Errorf("npy header: bad dimension %q", f)
		}
		shape = append(shape, n)
	}
	return descr, fortran, shape, nil
}

func headerValue(h, key string) (string, error) {
	i := strings.Index(h, "'"+key+"'")
	if i < 0 {
		return "", fmt.Errorf("npy header: missing %s", key)
	}
	rest := h[i+len(key)+2:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return "", fmt.Errorf("npy header: malformed %s", key)
	}
	rest = rest[colon+1:]
	end := strings.IndexByte(rest, ',')
	if end < 0 {
		end = strings.IndexByte(rest, '}')
	}
	if end < 0 {
		return "", fmt.Errorf("npy header: malformed %s", key)
	}
	return strings.TrimSpace(rest[:end]), nil
}
