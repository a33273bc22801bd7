// Package calibration loads the histogram calibration data shipped with the model.
//
// The data is opaque to the pipeline: it must be a JSON array, and its
// presence gates the start of the signing loop.
package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// maxSize bounds how much calibration data is read.
var maxSize int64 = 32 << 20

// ErrTooLarge is returned when the data exceeds the size bound.
var ErrTooLarge = errors.New("calibration too large")

// Data is a loaded calibration array.
type Data struct {
	Source string
	Values []json.RawMessage
}

// Len returns the number of top-level entries.
func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Values)
}

// Load reads calibration data from a file path or an http(s) URL.
func Load(ctx context.Context, source string) (*Data, error) {
	if source == "" {
		return nil, fmt.Errorf("calibration: no source configured")
	}

	var (
		raw []byte
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		raw, err = fetch(ctx, source)
	} else {
		raw, err = readFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("calibration: load %s: %w", source, err)
	}

	return Parse(source, raw)
}

// Parse validates that raw holds a JSON array.
func Parse(source string, raw []byte) (*Data, error) {
	var values []json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("calibration: %s is not a JSON array: %w", source, err)
	}
	if values == nil {
		return nil, fmt.Errorf("calibration: %s is null", source)
	}
	return &Data{Source: source, Values: values}, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f)
}

// readLimited reads r fully, failing rather than truncating past maxSize.
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxSize)
	}
	return data, nil
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return readLimited(resp.Body)
}
