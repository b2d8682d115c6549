package providerhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aegiscore/aegis/internal/domain/coreerr"
	"github.com/aegiscore/aegis/internal/domain/provider"
)

func TestTransport_SuccessDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("traceparent") == "" {
			t.Error("expected a traceparent header")
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "gpt-test" {
			t.Errorf("model = %q, want gpt-test", req.Model)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Content: "hello back", Model: "gpt-test"})
	}))
	defer srv.Close()

	tr := New(srv.URL, "test-key", time.Second)
	resp, err := tr.Send(t.Context(), provider.Request{
		Messages:   []provider.Message{{Role: "user", Content: "hi"}},
		ProviderID: "openai",
		ModelID:    "gpt-test",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if resp.Content != "hello back" {
		t.Errorf("Content = %q, want %q", resp.Content, "hello back")
	}
	if resp.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", resp.Provider)
	}
}

func TestTransport_ModelRejectedClassifiesAsModelRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	tr := New(srv.URL, "test-key", time.Second)
	_, err := tr.Send(t.Context(), provider.Request{ModelID: "gpt-test", ProviderID: "openai"})
	if !coreerr.Is(err, coreerr.ErrModelRejected) {
		t.Fatalf("expected ErrModelRejected, got %v", err)
	}
}

func TestTransport_ServerErrorClassifiesAsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := New(srv.URL, "test-key", time.Second)
	_, err := tr.Send(t.Context(), provider.Request{ModelID: "gpt-test", ProviderID: "openai"})
	if !coreerr.Is(err, coreerr.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestTransport_ClientErrorClassifiesAsProtocol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tr := New(srv.URL, "test-key", time.Second)
	_, err := tr.Send(t.Context(), provider.Request{ModelID: "gpt-test", ProviderID: "openai"})
	if !coreerr.Is(err, coreerr.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestTransport_MalformedBodyClassifiesAsProtocol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	tr := New(srv.URL, "test-key", time.Second)
	_, err := tr.Send(t.Context(), provider.Request{ModelID: "gpt-test", ProviderID: "openai"})
	if !coreerr.Is(err, coreerr.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestTransport_ServerHangClassifiesAsTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() { close(block); srv.Close() }()

	tr := New(srv.URL, "test-key", 20*time.Millisecond)
	_, err := tr.Send(t.Context(), provider.Request{ModelID: "gpt-test", ProviderID: "openai"})
	if !coreerr.Is(err, coreerr.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestTransport_UnreachableHostClassifiesAsNetwork(t *testing.T) {
	tr := New("http://127.0.0.1:1", "test-key", time.Second)
	_, err := tr.Send(t.Context(), provider.Request{ModelID: "gpt-test", ProviderID: "openai"})
	if !coreerr.Is(err, coreerr.ErrNetwork) && !coreerr.Is(err, coreerr.ErrTimeout) {
		t.Fatalf("expected ErrNetwork or ErrTimeout, got %v", err)
	}
}
