package blobstore

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/config"
	"github.com/lehigh-university-libraries/shelfscan/internal/ingesterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		camera     int
		filename   string
		prefix     string
		suffix     string
	}{
		{"plain", "H10011", 1, "front.jpg", "items/H10011/camera-1/", ".jpg"},
		{"unsafe identifier", "H 100/11", 2, "IMG.PNG", "items/H_100_11/camera-2/", ".png"},
		{"no extension", "A1", 3, "capture", "items/A1/camera-3/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := ObjectKey(tt.identifier, tt.camera, tt.filename)
			assert.True(t, strings.HasPrefix(key, tt.prefix), key)
			assert.True(t, strings.HasSuffix(key, tt.suffix), key)
		})
	}

	assert.NotEqual(t, ObjectKey("A", 1, "a.jpg"), ObjectKey("A", 1, "a.jpg"))
}

func TestLocalPutFetch(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir(), "http://localhost:8888", time.Minute)
	require.NoError(t, err)

	n, err := l.Put(ctx, "items/A1/camera-1/x.jpg", bytes.NewReader([]byte("jpeg-bytes")))
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	data, err := l.Fetch(ctx, "items/A1/camera-1/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestLocalFetchNotFound(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, err := NewLocal(dir, "", time.Minute)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.jpg"), nil, 0644))

	for _, key := range []string{"missing.jpg", "empty.jpg", "../etc/passwd"} {
		_, err := l.Fetch(ctx, key)
		assert.ErrorIs(t, err, ingesterr.ErrNotFound, key)
	}
}

func TestLocalPutTooLarge(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "", time.Minute)
	require.NoError(t, err)

	_, err = l.Put(context.Background(), "big.jpg", bytes.NewReader(make([]byte, MaxUploadSize+1)))
	assert.ErrorIs(t, err, ingesterr.ErrValidation)

	_, err = l.Fetch(context.Background(), "big.jpg")
	assert.ErrorIs(t, err, ingesterr.ErrNotFound)
}

func TestLocalPresign(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "http://localhost:8888/", time.Minute)
	require.NoError(t, err)

	auth, err := l.Presign(context.Background(), PresignRequest{Identifier: "H10011", Filename: "f.jpg", ContentType: "image/jpeg", Camera: 1})
	require.NoError(t, err)
	assert.Equal(t, "PUT", auth.Method)
	assert.True(t, strings.HasPrefix(auth.URL, "http://localhost:8888/api/uploads?key=items%2FH10011%2Fcamera-1%2F"), auth.URL)
	assert.Equal(t, "image/jpeg", auth.Fields["Content-Type"])
	assert.True(t, auth.Expiry.After(time.Now()))

	_, err = l.Presign(context.Background(), PresignRequest{Identifier: "H10011", Camera: 0})
	assert.ErrorIs(t, err, ingesterr.ErrValidation)
}

func TestHTTPFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/images/items/A1/front.jpg":
			_, _ = w.Write([]byte("img"))
		case "/images/empty.jpg":
			w.WriteHeader(http.StatusOK)
		case "/images/broken.jpg":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL + "/images/")
	ctx := context.Background()

	data, err := h.Fetch(ctx, "items/A1/front.jpg")
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))

	tests := []struct {
		key  string
		kind error
	}{
		{"missing.jpg", ingesterr.ErrNotFound},
		{"empty.jpg", ingesterr.ErrNotFound},
		{"broken.jpg", ingesterr.ErrUpstream},
	}
	for _, tt := range tests {
		_, err := h.Fetch(ctx, tt.key)
		assert.ErrorIs(t, err, tt.kind, tt.key)
	}
}

func TestMinioPresign(t *testing.T) {
	m, err := NewMinio(config.MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "captures",
		Region:    "us-east-1",
	}, 15*time.Minute)
	require.NoError(t, err)

	auth, err := m.Presign(context.Background(), PresignRequest{Identifier: "H10011", Filename: "f.jpg", ContentType: "image/jpeg", Camera: 2})
	require.NoError(t, err)

	assert.Equal(t, "POST", auth.Method)
	assert.Contains(t, auth.URL, "localhost:9000")
	assert.Equal(t, auth.FinalKey, auth.Fields["key"])
	assert.NotEmpty(t, auth.Fields["policy"])
	assert.True(t, strings.HasPrefix(auth.FinalKey, "items/H10011/camera-2/"))
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Config{}
	cfg.Blob.Backend = "http"
	cfg.Blob.HTTPBaseURL = "http://images.example.com"

	store, presigner, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &HTTP{}, store)
	assert.Nil(t, presigner)

	cfg.Blob.Backend = "local"
	cfg.Blob.LocalDir = t.TempDir()
	store, presigner, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)
	assert.NotNil(t, presigner)

	cfg.Blob.Backend = "ftp"
	_, _, err = New(cfg)
	assert.Error(t, err)
}

func TestUploadPOSTPolicy(t *testing.T) {
	var gotFields map[string]string
	var gotFile []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		f, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(f)
		gotFile = buf.Bytes()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	auth := &Authorization{URL: srv.URL, Method: "POST", Fields: map[string]string{"key": "items/H1/a.jpg", "policy": "p"}}
	require.NoError(t, Upload(context.Background(), srv.Client(), auth, "a.jpg", []byte("jpeg")))
	assert.Equal(t, "items/H1/a.jpg", gotFields["key"])
	assert.Equal(t, []byte("jpeg"), gotFile)
}

func TestUploadPUTToLocal(t *testing.T) {
	local, err := NewLocal(t.TempDir(), "", time.Minute)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		if _, err := local.Put(r.Context(), r.URL.Query().Get("key"), r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	local.publicURL = srv.URL
	auth, err := local.Presign(context.Background(), PresignRequest{Identifier: "H1", Filename: "a.png", ContentType: "image/png", Camera: 1})
	require.NoError(t, err)

	require.NoError(t, Upload(context.Background(), nil, auth, "a.png", []byte("png bytes")))
	data, err := local.Fetch(context.Background(), auth.FinalKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), data)
}

func TestUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "policy expired", http.StatusForbidden)
	}))
	defer srv.Close()

	err := Upload(context.Background(), nil, &Authorization{URL: srv.URL, Method: "PUT"}, "a.jpg", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, ingesterr.KindUpstream, ingesterr.KindOf(err))
	assert.Contains(t, err.Error(), "policy expired")

	err = Upload(context.Background(), nil, &Authorization{URL: srv.URL, Method: "PATCH"}, "a.jpg", []byte("x"))
	assert.ErrorIs(t, err, ingesterr.ErrValidation)
}
