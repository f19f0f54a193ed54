package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

func newTestFal(t *testing.T, model string, handler http.HandlerFunc) *Fal {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFal(FalConfig{APIKey: "fal-key", BaseURL: srv.URL, Model: model}, testLogger())
}

// ========================================
// fal Tests
// ========================================

func TestFal_GenerateStaging(t *testing.T) {
	var got falRequest
	f := newTestFal(t, "fal-ai/flux/dev/image-to-image", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fal-ai/flux/dev/image-to-image" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Key fal-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"images":[
			{"url":"https://cdn.fal.media/a.jpg","content_type":"image/jpeg","width":1024,"height":768},
			{"url":"https://cdn.fal.media/b.jpg","width":1024,"height":768}
		],"seed":42,"has_nsfw_concepts":[false,false]}`)
	})

	image := &models.ImageInput{Data: []byte("photo"), MimeType: "image/png"}
	out, err := f.GenerateStaging(context.Background(), image, "stage it", Options{
		ImageCount: 2,
		Dimensions: &models.Dimensions{Width: 1024, Height: 768},
	})
	if err != nil {
		t.Fatalf("GenerateStaging() error = %v", err)
	}

	if len(out.Images) != 2 || out.Images[0].URL != "https://cdn.fal.media/a.jpg" {
		t.Fatalf("Images = %+v", out.Images)
	}
	if out.Images[1].MimeType != "image/jpeg" {
		t.Errorf("missing content type should default to jpeg, got %q", out.Images[1].MimeType)
	}
	if out.Usage != nil {
		t.Errorf("fal reports no usage, got %+v", out.Usage)
	}

	if got.NumImages != 2 {
		t.Errorf("num_images = %d, want 2", got.NumImages)
	}
	if !strings.HasPrefix(got.ImageURL, "data:image/png;base64,") {
		t.Errorf("image_url = %q, want data URI", got.ImageURL)
	}
	if got.ImageSize == nil || got.ImageSize.Width != 1024 {
		t.Errorf("image_size = %+v", got.ImageSize)
	}
}

func TestFal_BatchSizeCapped(t *testing.T) {
	var got falRequest
	f := newTestFal(t, FalSchnellModel, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"images":[{"url":"https://x/1.jpg"}]}`)
	})

	if _, err := f.GenerateStaging(context.Background(), nil, "prompt", Options{ImageCount: 10}); err != nil {
		t.Fatalf("GenerateStaging() error = %v", err)
	}
	if got.NumImages != falMaxBatchSize {
		t.Errorf("num_images = %d, want %d", got.NumImages, falMaxBatchSize)
	}
	if got.ImageURL != "" {
		t.Errorf("text-to-image should not send image_url")
	}
}

func TestFal_EndpointByMode(t *testing.T) {
	tests := []struct {
		name     string
		image    *models.ImageInput
		wantPath string
		wantURL  bool
	}{
		{"image to image", &models.ImageInput{Data: []byte("photo"), MimeType: "image/jpeg"}, "/fal-ai/flux/dev/image-to-image", true},
		{"text to image", nil, "/fal-ai/flux/dev", false},
		{"empty image counts as text", &models.ImageInput{MimeType: "image/jpeg"}, "/fal-ai/flux/dev", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			var got falRequest
			f := newTestFal(t, "", func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"images":[{"url":"https://x/1.jpg"}]}`)
			})

			out, err := f.GenerateStaging(context.Background(), tt.image, "prompt", Options{})
			if err != nil {
				t.Fatalf("GenerateStaging() error = %v", err)
			}
			if path != tt.wantPath {
				t.Errorf("path = %s, want %s", path, tt.wantPath)
			}
			if out.Model != strings.TrimPrefix(tt.wantPath, "/") {
				t.Errorf("Model = %s", out.Model)
			}
			if (got.ImageURL != "") != tt.wantURL {
				t.Errorf("image_url sent = %v, want %v", got.ImageURL != "", tt.wantURL)
			}
		})
	}
}

func TestFal_NSFWFiltered(t *testing.T) {
	t.Run("partial", func(t *testing.T) {
		f := newTestFal(t, "", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"images":[{"url":"https://x/1.jpg"},{"url":"https://x/2.jpg"}],"has_nsfw_concepts":[true,false]}`)
		})
		out, err := f.GenerateStaging(context.Background(), nil, "prompt", Options{ImageCount: 2})
		if err != nil {
			t.Fatalf("GenerateStaging() error = %v", err)
		}
		if len(out.Images) != 1 || out.Images[0].URL != "https://x/2.jpg" {
			t.Errorf("Images = %+v", out.Images)
		}
		if out.BilledImages != 2 {
			t.Errorf("BilledImages = %d, want 2", out.BilledImages)
		}
	})

	t.Run("all flagged", func(t *testing.T) {
		f := newTestFal(t, "", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"images":[{"url":"https://x/1.jpg"}],"has_nsfw_concepts":[true]}`)
		})
		_, err := f.GenerateStaging(context.Background(), nil, "prompt", Options{})
		if !errors.Is(err, ErrContentPolicy) {
			t.Errorf("error = %v, want ErrContentPolicy", err)
		}
	})
}

func TestFal_ErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
		detail string
	}{
		{"string detail", 401, `{"detail":"Invalid key"}`, CodeUnauthorized, "Invalid key"},
		{"validation detail", 422, `{"detail":[{"loc":["body","prompt"],"msg":"field required"}]}`, CodeInvalidRequest, "field required"},
		{"server error", 500, `{"detail":"Internal"}`, CodeServerError, "Internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFal(t, "", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := f.GenerateStaging(context.Background(), nil, "prompt", Options{})
			var pErr *ProviderError
			if !errors.As(err, &pErr) {
				t.Fatalf("error = %v, want ProviderError", err)
			}
			if pErr.Code != tt.code {
				t.Errorf("Code = %q, want %q", pErr.Code, tt.code)
			}
			if !strings.Contains(pErr.Error(), tt.detail) {
				t.Errorf("Error() = %q, want it to contain %q", pErr.Error(), tt.detail)
			}
		})
	}
}

func TestFalCostPerImageFor(t *testing.T) {
	if got := FalCostPerImageFor(FalSchnellModel); got != FalSchnellCostPerImage {
		t.Errorf("schnell cost = %v, want %v", got, FalSchnellCostPerImage)
	}
	if got := FalCostPerImageFor(DefaultFalModel); got != FalCostPerImage {
		t.Errorf("default cost = %v, want %v", got, FalCostPerImage)
	}
	if info := NewFal(FalConfig{Model: FalSchnellModel}, testLogger()).GetInfo(); info.CostPerImage != FalSchnellCostPerImage {
		t.Errorf("GetInfo().CostPerImage = %v", info.CostPerImage)
	}
}

// ========================================
// Analysis Parsing Tests
// ========================================

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		roomType string
		env      models.Environment
		wantErr  bool
	}{
		{
			name:     "plain json",
			raw:      `{"room_type":"Bedroom","environment":"interior","description":"bright","suggestions":["a","b"]}`,
			roomType: "bedroom",
			env:      models.EnvironmentInterior,
		},
		{
			name:     "fenced json",
			raw:      "```json\n{\"room_type\":\"terrace\",\"environment\":\"EXTERIOR\"}\n```",
			roomType: "terrace",
			env:      models.EnvironmentExterior,
		},
		{
			name:     "unknown environment defaults to interior",
			raw:      `{"room_type":"office","environment":"spaceship"}`,
			roomType: "office",
			env:      models.EnvironmentInterior,
		},
		{name: "empty", raw: "  ", wantErr: true},
		{name: "not json", raw: "a lovely room", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAnalysis(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAnalysis() error = %v", err)
			}
			if a.RoomType != tt.roomType || a.Environment != tt.env {
				t.Errorf("got room_type=%q environment=%q", a.RoomType, a.Environment)
			}
		})
	}
}
