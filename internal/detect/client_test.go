// internal/detect/client_test.go
package detect

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultTimeout(t *testing.T) {
	c := New(Config{})
	require.NotNil(t, c.httpClient)
	assert.Equal(t, c.cfg.Timeout, c.httpClient.Timeout)
	assert.NotZero(t, c.httpClient.Timeout)
}

func TestRunAnomaly(t *testing.T) {
	var got AnomalyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	}))
	defer server.Close()

	c := New(Config{AnomalyURL: server.URL + "/sosemail/iso-forest"})
	res, err := c.RunAnomaly(context.Background(), DefaultAnomalyRequest())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Body, "queued")
	assert.Equal(t, 0.05, got.Contamination)
	assert.Equal(t, 500, got.NEstimators)
	assert.Equal(t, DefaultAnomalyFeatures, got.Features)
}

func TestRunAnomaly_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(Config{AnomalyURL: server.URL})
	res, err := c.RunAnomaly(context.Background(), DefaultAnomalyRequest())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
}

func TestRunAnomaly_NotConfigured(t *testing.T) {
	_, err := New(Config{}).RunAnomaly(context.Background(), DefaultAnomalyRequest())
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestSARImageURL(t *testing.T) {
	c := New(Config{SARImageURL: "http://sar.example/sar/generate_sar_image"})
	assert.Equal(t, "http://sar.example/sar/generate_sar_image?lat=28.70349167&lon=48.5", c.SARImageURL(28.70349167, 48.5))

	assert.Equal(t, "", New(Config{}).SARImageURL(1, 2))
}

func TestClassifySAR_FromURL(t *testing.T) {
	var body map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload_from_url", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte("1"))
	}))
	defer server.Close()

	c := New(Config{
		SARUploadFromURL: server.URL + "/upload_from_url",
		SARImageURL:      "http://sar.example/sar/generate_sar_image",
	})
	res, err := c.ClassifySAR(context.Background(), Vessel{ShipName: "Gulf Star", Lat: 29.1, Lon: 48.9})
	require.NoError(t, err)

	assert.True(t, res.SpillDetected)
	assert.Equal(t, MethodFromURL, res.Method)
	assert.Equal(t, "http://sar.example/sar/generate_sar_image?lat=29.1&lon=48.9", body["url"])
}

func TestClassifySAR_Upload(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "alkhiran-dlb1600.jpeg")
	require.NoError(t, os.WriteFile(img, []byte("fake-jpeg-bytes"), 0644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "fake-jpeg-bytes", string(data))
		assert.Equal(t, "alkhiran-dlb1600.jpeg", header.Filename)
		_, _ = w.Write([]byte("0\n"))
	}))
	defer server.Close()

	c := New(Config{
		SARUploadURL:    server.URL + "/upload",
		ReferenceImages: map[string]string{"DLB 1600": img},
	})
	res, err := c.ClassifySAR(context.Background(), Vessel{ShipName: "DLB 1600"})
	require.NoError(t, err)

	assert.False(t, res.SpillDetected)
	assert.Equal(t, MethodUpload, res.Method)
	assert.Equal(t, "alkhiran-dlb1600.jpeg", res.Source)
}

func TestReferenceImage(t *testing.T) {
	c := New(Config{ReferenceImages: map[string]string{"dlb 1600": "/img/dlb.jpeg", "empty": ""}})

	p, ok := c.ReferenceImage("DLB 1600")
	assert.True(t, ok)
	assert.Equal(t, "/img/dlb.jpeg", p)

	_, ok = c.ReferenceImage("empty")
	assert.False(t, ok)
	_, ok = c.ReferenceImage("Gulf Star")
	assert.False(t, ok)
}

func TestClassifySAR_MissingImage(t *testing.T) {
	c := New(Config{
		SARUploadURL:    "http://127.0.0.1:1/upload",
		ReferenceImages: map[string]string{"DLB 1600": "/nonexistent/image.jpeg"},
	})
	_, err := c.ClassifySAR(context.Background(), Vessel{ShipName: "DLB 1600"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

func TestClassifySAR_Unknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("maybe"))
	}))
	defer server.Close()

	c := New(Config{SARUploadFromURL: server.URL, SARImageURL: "http://sar.example/img"})
	_, err := c.ClassifySAR(context.Background(), Vessel{})
	assert.True(t, errors.Is(err, ErrUnknownClassification))
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		body    string
		want    bool
		wantErr bool
	}{
		{"0", false, false},
		{"1", true, false},
		{" 1\n", true, false},
		{`"0"`, false, false},
		{"2", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			got, err := ParseClassification(tt.body)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownClassification)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
