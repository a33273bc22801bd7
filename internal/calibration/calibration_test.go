package calibration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{"flat array", `[1, 2, 3]`, 3, false},
		{"nested histogram", `[[0.1, 0.2], [0.3, 0.4]]`, 2, false},
		{"empty array", `[]`, 0, false},
		{"object", `{"a": 1}`, 0, true},
		{"null", `null`, 0, true},
		{"garbage", `not json`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse("test", []byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLen, d.Len())
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hist_data.json")
	require.NoError(t, os.WriteFile(path, []byte(`[[1,2],[3,4],[5,6]]`), 0o644))

	d, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, path, d.Source)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoad_EmptySource(t *testing.T) {
	_, err := Load(context.Background(), "")
	assert.Error(t, err)
}

func TestLoad_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hist_data.json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[0, 1, 2, 3]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d, err := Load(context.Background(), srv.URL+"/hist_data.json")
	require.NoError(t, err)
	assert.Equal(t, 4, d.Len())

	_, err = Load(context.Background(), srv.URL+"/missing.json")
	assert.Error(t, err)
}

func TestLoad_HTTPCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad_TooLarge(t *testing.T) {
	defer func(n int64) { maxSize = n }(maxSize)
	maxSize = 16

	body := []byte(`[[1, 2, 3], [4, 5, 6], [7, 8, 9]]`)
	exact := []byte(`[[1, 2], [3, 4]]`)
	require.Len(t, exact, 16)

	dir := t.TempDir()
	big := filepath.Join(dir, "big.json")
	require.NoError(t, os.WriteFile(big, body, 0o644))
	fits := filepath.Join(dir, "fits.json")
	require.NoError(t, os.WriteFile(fits, exact, 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	for _, source := range []string{big, srv.URL + "/hist_data.json"} {
		_, err := Load(context.Background(), source)
		assert.ErrorIs(t, err, ErrTooLarge, source)
		assert.ErrorContains(t, err, "exceeds 16 bytes")
	}

	d, err := Load(context.Background(), fits)
	require.NoError(t, err, "data at the limit is accepted")
	assert.Equal(t, 2, d.Len())
}

func TestData_LenNil(t *testing.T) {
	var d *Data
	assert.Equal(t, 0, d.Len())
}
