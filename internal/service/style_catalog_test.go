package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lukas-andre/decollage-cl-sub000/internal/config"
	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/prompt"
)

type catalogObject struct {
	body  string
	etag  string
	err   error
	calls int
}

func (o *catalogObject) GetObject(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(o.body)),
		ETag: aws.String(`"` + o.etag + `"`),
	}, nil
}

func newTestCatalog(t *testing.T, obj config.ObjectGetter) (*StyleCatalog, *prompt.Builder) {
	t.Helper()
	prompts, err := prompt.NewBuilder(nil)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	loader := config.NewS3Loader(config.S3LoaderConfig{
		Client:   obj,
		Bucket:   "assets",
		Key:      "config/custom-styles.json",
		CacheTTL: time.Hour,
		Logger:   testLogger(),
	})
	return NewStyleCatalog(loader, prompts, testLogger()), prompts
}

func TestStyleCatalog_Refresh(t *testing.T) {
	ctx := context.Background()
	obj := &catalogObject{etag: "v1", body: `{"styles":[
		{"id":"casa-andina","name":"Casa Andina","template":"Stage this {{.RoomType}} with andean textiles."},
		{"id":"broken","name":"Broken","template":"{{.RoomType"},
		{"id":"","name":"No ID","template":"x"}
	]}`}
	catalog, prompts := newTestCatalog(t, obj)

	n, err := catalog.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if n != 1 {
		t.Errorf("registered = %d, want 1", n)
	}

	in := prompt.InputFromRequest(&models.GenerationRequest{UserID: "u", CustomStyleID: "casa-andina", RoomType: "bedroom"})
	text, err := prompts.Build(in)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(text, "andean textiles") {
		t.Errorf("prompt = %q, want custom template", text)
	}
	if err := prompts.Resolve(prompt.InputFromRequest(&models.GenerationRequest{CustomStyleID: "broken"})); !errors.Is(err, prompt.ErrUnknownCustomStyle) {
		t.Errorf("broken style should not be registered, Resolve() = %v", err)
	}

	// Within the TTL the object is not fetched again.
	if n, err := catalog.Refresh(ctx); n != 0 || err != nil || obj.calls != 1 {
		t.Errorf("cached Refresh() = %d, %v after %d calls", n, err, obj.calls)
	}
}

func TestStyleCatalog_MissingAndErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing object keeps built-in styles", func(t *testing.T) {
		catalog, prompts := newTestCatalog(t, &catalogObject{err: &types.NoSuchKey{}})
		n, err := catalog.Refresh(ctx)
		if n != 0 || err != nil {
			t.Errorf("Refresh() = %d, %v", n, err)
		}
		if len(prompts.Styles()) == 0 {
			t.Error("built-in styles lost")
		}
	})

	t.Run("fetch error", func(t *testing.T) {
		catalog, _ := newTestCatalog(t, &catalogObject{err: errors.New("connection refused")})
		if _, err := catalog.Refresh(ctx); err == nil {
			t.Error("expected fetch error")
		}
	})

	t.Run("bad document", func(t *testing.T) {
		catalog, _ := newTestCatalog(t, &catalogObject{etag: "v1", body: `{"styles":"nope"}`})
		if _, err := catalog.Refresh(ctx); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		catalog, _ := newTestCatalog(t, nil)
		if n, err := catalog.Refresh(ctx); n != 0 || err != nil {
			t.Errorf("Refresh() = %d, %v", n, err)
		}
	})
}
