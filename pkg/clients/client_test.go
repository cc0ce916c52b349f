package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/trustmesh/trustmesh/pkg/cache"
	"github.com/trustmesh/trustmesh/pkg/httputil"
)

func TestGetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"left-pad"}`))
	}))
	defer srv.Close()

	c := NewClient("test", cache.NewNullCache(), 0, nil)

	var out struct {
		Name string `json:"name"`
	}
	if err := c.Get(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.Name != "left-pad" {
		t.Errorf("Name = %q, want left-pad", out.Name)
	}
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("test", cache.NewNullCache(), 0, nil)

	err := c.Get(context.Background(), srv.URL, &struct{}{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
	if httputil.IsRetryable(err) {
		t.Error("404 must not be retryable")
	}
}

func TestServerErrorsAreRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("test", cache.NewNullCache(), 0, nil)

	err := c.Get(context.Background(), srv.URL, &struct{}{})
	if !httputil.IsRetryable(err) {
		t.Errorf("5xx response should be retryable, got %v", err)
	}
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient("test", cache.NewNullCache(), 0, nil)

	var out struct {
		OK bool `json:"ok"`
	}
	payload := map[string]string{"version": "1.3.0"}
	if err := c.PostJSON(context.Background(), srv.URL, payload, &out); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
}

func TestDefaultHeaders(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("test", cache.NewNullCache(), 0, map[string]string{"Authorization": "token abc"})
	if err := c.Get(context.Background(), srv.URL, &struct{}{}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Load() != "token abc" {
		t.Errorf("Authorization header = %q, want %q", got.Load(), "token abc")
	}
}

func TestCachedSkipsSecondFetch(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"name":"left-pad"}`))
	}))
	defer srv.Close()

	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	c := NewClient("test", fc, 0, nil)
	ctx := context.Background()

	type pkg struct {
		Name string `json:"name"`
	}
	fetch := func(v *pkg) error {
		return c.Cached(ctx, "left-pad", false, v, func() error {
			return c.Get(ctx, srv.URL, v)
		})
	}

	var first, second pkg
	if err := fetch(&first); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if err := fetch(&second); err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1 (second should hit cache)", calls.Load())
	}
	if second.Name != "left-pad" {
		t.Errorf("cached value = %+v", second)
	}
}

func TestCachedRefreshBypassesCache(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	c := NewClient("test", fc, 0, nil)
	ctx := context.Background()

	var v struct{}
	for i := 0; i < 2; i++ {
		err := c.Cached(ctx, "key", true, &v, func() error {
			return c.Get(ctx, srv.URL, &v)
		})
		if err != nil {
			t.Fatalf("Cached: %v", err)
		}
	}

	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2 with refresh", calls.Load())
	}
}
