package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/visionmcp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupabaseUploader_Upload(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/storage/v1/object/photos/2026/cat%20one.png", r.URL.EscapedPath())
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Equal(t, "true", r.Header.Get("x-upsert"))
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"Key":"photos/2026/cat one.png"}`))
	}))
	defer server.Close()

	u := NewSupabaseUploader(SupabaseConfig{URL: server.URL + "/", ServiceRoleKey: "secret"}, nil)
	res, err := u.Upload(context.Background(), UploadRequest{
		Bucket:   "photos",
		Path:     "2026/cat one.png",
		Data:     []byte("png-bytes"),
		MimeType: "image/png",
		Checksum: "abc",
		Upsert:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("png-bytes"), gotBody)
	assert.Equal(t, "photos", res.Bucket)
	assert.Equal(t, server.URL+"/storage/v1/object/public/photos/2026/cat%20one.png", res.PublicURL)
	assert.Equal(t, 9, res.SizeBytes)
	assert.Equal(t, "abc", res.Checksum)
}

func TestSupabaseUploader_DefaultBucket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/object/images/a.jpg", r.URL.Path)
		assert.Equal(t, "false", r.Header.Get("x-upsert"))
	}))
	defer server.Close()

	u := NewSupabaseUploader(SupabaseConfig{URL: server.URL, ServiceRoleKey: "k"}, nil)
	res, err := u.Upload(context.Background(), UploadRequest{Path: "a.jpg", Data: []byte{1}, MimeType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBucket, res.Bucket)
}

func TestSupabaseUploader_Validation(t *testing.T) {
	u := NewSupabaseUploader(SupabaseConfig{URL: "http://127.0.0.1:1", ServiceRoleKey: "k"}, nil)

	tests := []struct {
		name string
		req  UploadRequest
	}{
		{"traversal", UploadRequest{Path: "../etc/passwd", Data: []byte{1}}},
		{"absolute", UploadRequest{Path: "/root/a.png", Data: []byte{1}}},
		{"bad bucket", UploadRequest{Bucket: "Bad Bucket!", Path: "a.png", Data: []byte{1}}},
		{"empty data", UploadRequest{Path: "a.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Upload(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
		})
	}
}

func TestSupabaseUploader_NotConfigured(t *testing.T) {
	u := NewSupabaseUploader(SupabaseConfig{}, nil)
	assert.False(t, u.Configured())

	_, err := u.Upload(context.Background(), UploadRequest{Path: "a.png", Data: []byte{1}})
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}

func TestSupabaseUploader_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"statusCode":"409","error":"Duplicate","message":"The resource already exists"}`))
	}))
	defer server.Close()

	u := NewSupabaseUploader(SupabaseConfig{URL: server.URL, ServiceRoleKey: "k"}, nil)
	_, err := u.Upload(context.Background(), UploadRequest{Path: "a.png", Data: []byte{1}, MimeType: "image/png"})
	require.Error(t, err)

	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrUpstreamError, e.Code)
	assert.Contains(t, e.PublicMessage(), "supabase: ")
	assert.Contains(t, e.PublicMessage(), "The resource already exists")
}

func TestSupabaseUploader_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	u := NewSupabaseUploader(SupabaseConfig{URL: server.URL, ServiceRoleKey: "k", Timeout: 50 * time.Millisecond}, nil)
	_, err := u.Upload(context.Background(), UploadRequest{Path: "a.png", Data: []byte{1}, MimeType: "image/png"})
	assert.Equal(t, types.ErrUpstreamTimeout, types.GetErrorCode(err))
}

func TestValidateBucket(t *testing.T) {
	assert.NoError(t, ValidateBucket("images"))
	assert.NoError(t, ValidateBucket("product-photos.v2"))
	assert.Error(t, ValidateBucket("a"))
	assert.Error(t, ValidateBucket("UPPER"))
	assert.Error(t, ValidateBucket("../x"))
}
