package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
)

// ========================================
// Register Tests
// ========================================

func TestRegister_OpenAPI(t *testing.T) {
	api := humachi.New(chi.NewRouter(), NewHumaConfig("https://api.example.cl"))
	Register(api, StubHandlers())

	spec := api.OpenAPI()
	if spec.Servers[0].URL != "https://api.example.cl" {
		t.Errorf("server URL = %q", spec.Servers[0].URL)
	}

	tests := []struct {
		path      string
		method    string
		protected bool
		admin     bool
	}{
		{"/api/v1/health", http.MethodGet, false, false},
		{"/api/v1/styles", http.MethodGet, false, false},
		{"/api/v1/generations", http.MethodPost, true, false},
		{"/api/v1/analyses", http.MethodPost, true, false},
		{"/api/v1/estimate", http.MethodPost, true, false},
		{"/api/v1/providers", http.MethodGet, true, false},
		{"/api/v1/batches", http.MethodPost, true, false},
		{"/api/v1/batches/{id}", http.MethodGet, true, false},
		{"/api/v1/tokens", http.MethodGet, true, false},
		{"/api/v1/tokens/transactions", http.MethodGet, true, false},
		{"/api/v1/usage", http.MethodGet, true, false},
		{"/api/v1/admin/usage", http.MethodGet, true, true},
		{"/api/v1/admin/tokens", http.MethodPost, true, true},
		{"/api/v1/admin/cost-records/{id}/actual", http.MethodPut, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			item := spec.Paths[tt.path]
			if item == nil {
				t.Fatalf("path %s not registered", tt.path)
			}
			var op = item.Get
			switch tt.method {
			case http.MethodPost:
				op = item.Post
			case http.MethodPut:
				op = item.Put
			}
			if op == nil {
				t.Fatalf("%s %s not registered", tt.method, tt.path)
			}
			if got := len(op.Security) > 0; got != tt.protected {
				t.Errorf("protected = %v, want %v", got, tt.protected)
			}
			_, admin := op.Metadata["requireAdmin"]
			if admin != tt.admin {
				t.Errorf("admin = %v, want %v", admin, tt.admin)
			}
			if op.OperationID == "" {
				t.Error("missing operation ID")
			}
		})
	}
}

func TestRegister_HiddenProbes(t *testing.T) {
	router := chi.NewRouter()
	api := humachi.New(router, NewHumaConfig(""))
	Register(api, StubHandlers())

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusServiceUnavailable}, // stub has no database
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if api.OpenAPI().Paths[tt.path] != nil {
				t.Errorf("%s should be hidden from docs", tt.path)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
