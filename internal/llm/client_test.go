package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateReturnsResponseText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Fatal("expected stream:false in request")
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "drafted text"})
	}))
	defer srv.Close()

	c := New(srv.URL, "mistral", Options{Temperature: 0.7, NumPredict: 64})
	got := c.Generate(context.Background(), "write a tweet")
	if got != "drafted text" {
		t.Fatalf("expected %q, got %q", "drafted text", got)
	}
}

func TestGenerateReturnsEmptyOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "mistral", Options{})
	if got := c.Generate(context.Background(), "write a tweet"); got != "" {
		t.Fatalf("expected empty text on server error, got %q", got)
	}
}

func TestGenerateReturnsEmptyOnUnreachableEndpoint(t *testing.T) {
	c := New("http://127.0.0.1:1", "mistral", Options{})
	if got := c.Generate(context.Background(), "write a tweet"); got != "" {
		t.Fatalf("expected empty text on unreachable endpoint, got %q", got)
	}
}
