package s3

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeS3 answers path-style requests for a single bucket.
func fakeS3(t *testing.T, objects map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/library" || r.URL.Path == "/library/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		body, ok := objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method != http.MethodHead {
				io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.WriteString(w, body)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestS3Backend(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	srv := fakeS3(t, map[string]string{
		"/library/assets/instructions/a.txt": "hello",
	})
	ctx := context.Background()

	b, err := NewBackend(ctx, BackendConfig{
		Endpoint:  srv.URL,
		Bucket:    "library",
		AccessKey: "key",
		SecretKey: "secret",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if b.Type() != "s3" {
		t.Errorf("Type = %q", b.Type())
	}

	rc, _, err := b.GetObject(ctx, "assets/instructions/a.txt", 0, 0)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Errorf("body = %q", data)
	}

	_, _, err = b.GetObject(ctx, "assets/instructions/none.txt", 0, 0)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing error = %v, want fs.ErrNotExist", err)
	}

	ok, err := b.ObjectExists(ctx, "assets/instructions/none.txt")
	if err != nil || ok {
		t.Errorf("ObjectExists(missing) = %v, %v", ok, err)
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		endpoint string
		ssl      bool
		want     string
	}{
		{"minio:9000", false, "http://minio:9000"},
		{"minio:9000", true, "https://minio:9000"},
		{"http://localhost:9000", true, "http://localhost:9000"},
		{"", true, ""},
	}
	for _, tt := range tests {
		if got := endpointURL(tt.endpoint, tt.ssl); got != tt.want {
			t.Errorf("endpointURL(%q, %v) = %q, want %q", tt.endpoint, tt.ssl, got, tt.want)
		}
	}
}

func TestNewBackendRequiresBucket(t *testing.T) {
	if _, err := NewBackend(context.Background(), BackendConfig{Endpoint: "http://localhost:1"}); err == nil {
		t.Error("expected error without bucket")
	}
}
