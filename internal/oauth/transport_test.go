package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// --- HTTPTransport.Post ---

func TestHTTPTransport_Post(t *testing.T) {
	t.Run("sends JSON and returns body", func(t *testing.T) {
		var gotBody exchangeRequest
		var gotContentType string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method: expected POST, got %s", r.Method)
			}
			gotContentType = r.Header.Get("Content-Type")
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("decoding request: %v", err)
			}
			w.Write([]byte(exchangeOK))
		}))
		defer srv.Close()

		raw, err := NewHTTPTransport(time.Second).Post(context.Background(), srv.URL, exchangeRequest{Code: "abc", State: "s1"})
		if err != nil {
			t.Fatalf("Post failed: %v", err)
		}
		if string(raw) != exchangeOK {
			t.Errorf("body: expected %s, got %s", exchangeOK, raw)
		}
		if gotContentType != "application/json" {
			t.Errorf("content type: got %q", gotContentType)
		}
		if gotBody.Code != "abc" || gotBody.State != "s1" {
			t.Errorf("request: got %+v", gotBody)
		}
	})

	t.Run("non-2xx becomes StatusError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			io.WriteString(w, strings.Repeat("x", 2000))
		}))
		defer srv.Close()

		_, err := NewHTTPTransport(time.Second).Post(context.Background(), srv.URL, exchangeRequest{Code: "abc"})
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("expected *StatusError, got %v", err)
		}
		if se.Code != http.StatusBadGateway {
			t.Errorf("code: expected 502, got %d", se.Code)
		}
		if len(se.Body) != maxErrorBody {
			t.Errorf("body excerpt: expected %d bytes, got %d", maxErrorBody, len(se.Body))
		}
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := NewHTTPTransport(5*time.Second).Post(ctx, srv.URL, exchangeRequest{Code: "abc"})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("unencodable body", func(t *testing.T) {
		_, err := (&HTTPTransport{}).Post(context.Background(), "http://unused.test", make(chan int))
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}
