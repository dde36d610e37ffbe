package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/productstudio/studio/internal/app"
	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/services/analysis"
	"github.com/productstudio/studio/internal/services/generation"
	"github.com/productstudio/studio/internal/testutil"
	"github.com/productstudio/studio/internal/types"
	"github.com/productstudio/studio/internal/utils/hashutil"
	"github.com/vmihailenco/msgpack"
	"go.uber.org/zap"
)

const specYAML = `dimensions:
  primary:
    width: {value: 60, unit: mm}
materials:
  primary_material:
    type: glass
`

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, productName string, images []analysis.Image) ([]byte, error) {
	return []byte(`{"product": {"name": "x"}, "metadata": {"confidence_overall": 0.5}}`), nil
}

func (stubAnalyzer) Model() string { return "stub" }

type harness struct {
	t      *testing.T
	app    *app.App
	server *Server
}

func newHarness(t *testing.T, configure func(cfg *config.Config)) *harness {
	t.Helper()

	cfg := testutil.NewConfig(t)
	if configure != nil {
		configure(cfg)
	}

	a, err := app.NewApp(cfg,
		app.WithLogger(zap.NewNop()),
		app.WithDB(testutil.NewDriver(t)),
		app.WithMQ(),
		app.WithFileUploader(),
		app.WithAnalyzer(stubAnalyzer{}),
		app.WithServices(),
	)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(a.Close)

	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	s.SetupRoutes(a)

	return &harness{t: t, app: a, server: s}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) request(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.do(req)
}

func (h *harness) upload(productID string, content []byte) *httptest.ResponseRecorder {
	h.t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "ref.png")
	if err != nil {
		h.t.Fatalf("form file: %v", err)
	}
	part.Write(content)
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/"+productID+"/reference-images", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return h.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()

	if rec.Code != status {
		t.Fatalf("status = %d, want %d: %s", rec.Code, status, rec.Body.String())
	}
}

func (h *harness) product(slug string) models.Product {
	h.t.Helper()

	rec := h.request(http.MethodPost, "/api/v1/products", map[string]any{"slug": slug, "name": "Amber Bottle"})
	expect(h.t, rec, http.StatusCreated)
	return decode[models.Product](h.t, rec)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	expect(t, h.request(http.MethodGet, "/healthz", nil), http.StatusOK)
}

func TestProductRoutes(t *testing.T) {
	h := newHarness(t, nil)
	product := h.product("amber")

	expect(t, h.request(http.MethodPost, "/api/v1/products", map[string]any{"slug": "amber", "name": "again"}), http.StatusConflict)
	expect(t, h.request(http.MethodPost, "/api/v1/products", map[string]any{"slug": "Not A Slug", "name": "x"}), http.StatusBadRequest)

	rec := h.request(http.MethodPut, "/api/v1/products/"+product.ID.String(), map[string]any{"name": "Renamed"})
	expect(t, rec, http.StatusOK)
	if got := decode[models.Product](t, rec); got.Name != "Renamed" {
		t.Fatalf("name = %q", got.Name)
	}

	rec = h.request(http.MethodGet, "/api/v1/products?limit=10", nil)
	expect(t, rec, http.StatusOK)
	if list := decode[[]models.Product](t, rec); len(list) != 1 {
		t.Fatalf("list = %d products", len(list))
	}
	expect(t, h.request(http.MethodGet, "/api/v1/products?limit=abc", nil), http.StatusBadRequest)

	expect(t, h.request(http.MethodDelete, "/api/v1/products/"+product.ID.String(), nil), http.StatusNoContent)
	expect(t, h.request(http.MethodGet, "/api/v1/products/"+product.ID.String(), nil), http.StatusNotFound)
	expect(t, h.request(http.MethodGet, "/api/v1/products/not-a-uuid", nil), http.StatusNotFound)
}

func TestSpecificationRoutes(t *testing.T) {
	h := newHarness(t, nil)
	pid := h.product("amber").ID.String()
	base := "/api/v1/products/" + pid

	expect(t, h.request(http.MethodGet, base+"/specifications/active", nil), http.StatusNotFound)

	rec := h.request(http.MethodPost, base+"/specifications", map[string]any{"content": specYAML, "change_note": "first"})
	expect(t, rec, http.StatusCreated)
	v1 := decode[models.SpecificationVersion](t, rec)
	if v1.Version != 1 || !v1.IsActive || v1.MaterialType != "glass" {
		t.Fatalf("v1 = %+v", v1)
	}

	rec = h.request(http.MethodPut, "/api/v1/specifications/"+v1.ID.String(), map[string]any{"content": "edited"})
	expect(t, rec, http.StatusCreated)
	v2 := decode[models.SpecificationVersion](t, rec)
	if v2.Version != 2 || !v2.IsActive {
		t.Fatalf("v2 = %+v", v2)
	}

	expect(t, h.request(http.MethodPost, base+"/specifications", map[string]any{}), http.StatusBadRequest)
	expect(t, h.request(http.MethodDelete, "/api/v1/specifications/"+v2.ID.String(), nil), http.StatusConflict)

	expect(t, h.request(http.MethodPost, "/api/v1/specifications/"+v1.ID.String()+"/activate", nil), http.StatusOK)
	rec = h.request(http.MethodGet, base+"/specifications/active", nil)
	expect(t, rec, http.StatusOK)
	if active := decode[models.SpecificationVersion](t, rec); active.ID != v1.ID {
		t.Fatalf("active = v%d", active.Version)
	}

	rec = h.request(http.MethodGet, base+"/specifications", nil)
	expect(t, rec, http.StatusOK)
	if list := decode[[]models.SpecificationVersion](t, rec); len(list) != 2 || list[0].Version != 2 {
		t.Fatalf("list = %+v", list)
	}

	expect(t, h.request(http.MethodGet, base+"/specifications/versions/2", nil), http.StatusOK)
	expect(t, h.request(http.MethodGet, base+"/specifications/versions/9", nil), http.StatusNotFound)
	expect(t, h.request(http.MethodGet, base+"/specifications/versions/x", nil), http.StatusBadRequest)
	expect(t, h.request(http.MethodPost, "/api/v1/specifications/00000000-0000-4000-8000-000000000000/activate", nil), http.StatusNotFound)
	expect(t, h.request(http.MethodDelete, "/api/v1/specifications/"+v2.ID.String(), nil), http.StatusNoContent)
}

func TestReferenceRoutes(t *testing.T) {
	h := newHarness(t, nil)
	pid := h.product("amber").ID.String()

	var ids []string
	for i := 0; i < 4; i++ {
		rec := h.upload(pid, testutil.PNG(t, 8, 8, uint8(i)))
		expect(t, rec, http.StatusCreated)
		img := decode[models.ReferenceImage](t, rec)
		if img.DisplayOrder != i || img.IsPrimary {
			t.Fatalf("image %d = %+v", i, img)
		}
		ids = append(ids, img.ID.String())
	}

	expect(t, h.upload(pid, testutil.PNG(t, 8, 8, 9)), http.StatusBadRequest)
	expect(t, h.upload(pid, []byte("not an image")), http.StatusBadRequest)

	rec := h.request(http.MethodPost, "/api/v1/reference-images/"+ids[2]+"/primary", nil)
	expect(t, rec, http.StatusOK)
	if img := decode[models.ReferenceImage](t, rec); !img.IsPrimary {
		t.Fatalf("not primary")
	}

	expect(t, h.request(http.MethodPut, "/api/v1/reference-images/"+ids[3]+"/order", map[string]any{"display_order": 0}), http.StatusOK)
	expect(t, h.request(http.MethodPut, "/api/v1/reference-images/"+ids[3]+"/order", map[string]any{"display_order": 7}), http.StatusBadRequest)

	expect(t, h.request(http.MethodDelete, "/api/v1/reference-images/"+ids[0], nil), http.StatusNoContent)
	expect(t, h.request(http.MethodDelete, "/api/v1/reference-images/"+ids[0], nil), http.StatusNotFound)

	rec = h.request(http.MethodGet, "/api/v1/products/"+pid+"/reference-images", nil)
	expect(t, rec, http.StatusOK)
	list := decode[[]models.ReferenceImage](t, rec)
	if len(list) != 3 || list[0].ID.String() != ids[3] {
		t.Fatalf("list = %+v", list)
	}
	for i, img := range list {
		if img.DisplayOrder != i {
			t.Fatalf("order %d = %d", i, img.DisplayOrder)
		}
	}

	rec = h.request(http.MethodGet, "/files/"+list[0].StorageHandle, nil)
	expect(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	expect(t, h.request(http.MethodGet, "/files/amber/refs/missing.png", nil), http.StatusNotFound)
}

func TestGenerationRoutes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pid := h.product("amber").ID.String()
	base := "/api/v1/products/" + pid

	expect(t, h.request(http.MethodPost, base+"/generate", map[string]any{"prompt": "p"}), http.StatusPreconditionFailed)
	expect(t, h.request(http.MethodPost, base+"/specifications", map[string]any{"content": specYAML}), http.StatusCreated)
	expect(t, h.request(http.MethodPost, base+"/generate", map[string]any{"prompt": "p", "image_count": 11}), http.StatusBadRequest)
	expect(t, h.request(http.MethodPost, "/api/v1/products/00000000-0000-4000-8000-000000000000/generate", map[string]any{"prompt": "p"}), http.StatusNotFound)

	rec := h.request(http.MethodPost, base+"/generate", map[string]any{"prompt": "on a table", "image_count": 2})
	expect(t, rec, http.StatusAccepted)
	submitted := decode[types.GenerationResponse](t, rec)
	if submitted.Status != string(models.JobStatusPending) {
		t.Fatalf("status = %s", submitted.Status)
	}

	rec = h.request(http.MethodGet, "/api/v1/generation-requests/"+submitted.ID, nil)
	expect(t, rec, http.StatusOK)
	if job := decode[models.GenerationJob](t, rec); job.Status != models.JobStatusPending || len(job.Artifacts) != 0 {
		t.Fatalf("job = %s with %d artifacts", job.Status, len(job.Artifacts))
	}

	capability := generation.CapabilityFunc(func(ctx context.Context, req generation.Request) ([]generation.Output, error) {
		return []generation.Output{
			{Content: testutil.PNG(t, 4, 4, 1)},
			{Content: testutil.PNG(t, 4, 4, 2)},
		}, nil
	})
	if err := h.app.NewExecutor(capability).Execute(ctx, submitted.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	rec = h.request(http.MethodGet, "/api/v1/generation-requests/"+submitted.ID, nil)
	expect(t, rec, http.StatusOK)
	job := decode[models.GenerationJob](t, rec)
	if job.Status != models.JobStatusCompleted || len(job.Artifacts) != 2 || job.Artifacts[0].URL == "" {
		t.Fatalf("job = %+v", job)
	}

	rec = h.request(http.MethodGet, "/api/v1/generation-requests/"+submitted.ID+"/images", nil)
	expect(t, rec, http.StatusOK)
	if images := decode[[]models.GeneratedArtifact](t, rec); len(images) != 2 {
		t.Fatalf("images = %d", len(images))
	}

	rec = h.request(http.MethodGet, base+"/gallery", nil)
	expect(t, rec, http.StatusOK)
	if gallery := decode[[]models.GeneratedArtifact](t, rec); len(gallery) != 2 {
		t.Fatalf("gallery = %d", len(gallery))
	}

	rec = h.request(http.MethodGet, base+"/generations", nil)
	expect(t, rec, http.StatusOK)
	if jobs := decode[[]models.GenerationJob](t, rec); len(jobs) != 1 {
		t.Fatalf("jobs = %d", len(jobs))
	}

	expect(t, h.request(http.MethodGet, "/files/"+job.Artifacts[0].StorageHandle, nil), http.StatusOK)

	expect(t, h.request(http.MethodDelete, "/api/v1/generation-requests/"+submitted.ID, nil), http.StatusNoContent)
	expect(t, h.request(http.MethodGet, "/api/v1/generation-requests/"+submitted.ID, nil), http.StatusNotFound)
}

func TestSubmitMsgpackAndDeleteProcessing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pid := h.product("amber").ID.String()
	expect(t, h.request(http.MethodPost, "/api/v1/products/"+pid+"/specifications", map[string]any{"content": specYAML}), http.StatusCreated)

	body, err := msgpack.Marshal(types.GenerateParamsRequest{Prompt: "packed", AspectRatio: "16:9", ImageCount: 1})
	if err != nil {
		t.Fatalf("msgpack: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/"+pid+"/generate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/msgpack")
	rec := h.do(req)
	expect(t, rec, http.StatusAccepted)
	submitted := decode[types.GenerationResponse](t, rec)

	job, err := h.app.Ledger.TransitionToProcessing(ctx, submitted.ID)
	if err != nil {
		t.Fatalf("TransitionToProcessing: %v", err)
	}
	if job.Prompt != "packed" || job.AspectRatio != "16:9" {
		t.Fatalf("job = %+v", job)
	}

	expect(t, h.request(http.MethodDelete, "/api/v1/generation-requests/"+submitted.ID, nil), http.StatusConflict)
	expect(t, h.request(http.MethodDelete, "/api/v1/products/"+pid+"?purge=true", nil), http.StatusConflict)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/products/"+pid+"/generate", strings.NewReader("prompt=x"))
	req.Header.Set("Content-Type", "text/plain")
	expect(t, h.do(req), http.StatusBadRequest)
}

func TestAnalyzeRoute(t *testing.T) {
	h := newHarness(t, nil)
	pid := h.product("amber").ID.String()

	expect(t, h.request(http.MethodPost, "/api/v1/products/"+pid+"/analyze", nil), http.StatusPreconditionFailed)
	expect(t, h.upload(pid, testutil.PNG(t, 8, 8, 1)), http.StatusCreated)

	rec := h.request(http.MethodPost, "/api/v1/products/"+pid+"/analyze", nil)
	expect(t, rec, http.StatusCreated)
	spec := decode[models.SpecificationVersion](t, rec)
	if spec.AnalysisModel != "stub" || spec.ImageCount != 1 || spec.Confidence == nil || !spec.IsActive {
		t.Fatalf("spec = %+v", spec)
	}
}

func TestAuthentication(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.DisableAuth = false })
	ctx := context.Background()

	key := "studio-test-key"
	if _, err := h.app.APIKeyRepository.Create(ctx, models.NewAPIKey(hashutil.Sha3256Hash([]byte(key)), "stud...key")); err != nil {
		t.Fatalf("create key: %v", err)
	}

	withKey := func(value string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		if value != "" {
			req.Header.Set("X-API-Key", value)
		}
		return h.do(req)
	}

	expect(t, withKey(""), http.StatusUnauthorized)
	expect(t, withKey("wrong"), http.StatusUnauthorized)
	expect(t, withKey(key), http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer token")
	expect(t, h.do(req), http.StatusUnauthorized)

	if err := h.app.APIKeyRepository.RevokeAPIKeyWithHash(ctx, hashutil.Sha3256Hash([]byte(key))); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	expect(t, withKey(key), http.StatusUnauthorized)

	// health checks stay open
	expect(t, h.request(http.MethodGet, "/healthz", nil), http.StatusOK)
}
