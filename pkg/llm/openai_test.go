package llm

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// modelsServer answers GET /v1/models for one accepted key
func modelsServer(t *testing.T, key string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+key {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
			return
		}
		w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o","object":"model","created":1715367049,"owned_by":"system"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAICheckKey(t *testing.T) {
	srv := modelsServer(t, "sk-live")

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"accepted key", "sk-live", false},
		{"rejected key", "sk-revoked", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasoner, err := New(t.Context(), Options{Provider: ProviderOpenAI, APIKey: tt.key, BaseURL: srv.URL + "/v1"})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			checker, ok := reasoner.(KeyChecker)
			if !ok {
				t.Fatal("openai reasoner does not implement KeyChecker")
			}
			err = checker.CheckKey(t.Context())
			if tt.wantErr && err == nil {
				t.Error("expected key check to fail")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
