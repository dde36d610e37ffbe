package generation

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/mq"
	"github.com/productstudio/studio/internal/services/filestorage"
	"github.com/productstudio/studio/internal/services/fileuploader"
	"github.com/productstudio/studio/internal/services/references"
	"github.com/productstudio/studio/internal/services/specification"
	"github.com/productstudio/studio/internal/testutil"
	"github.com/productstudio/studio/internal/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const testSpec = `product:
  name: Amber Bottle
dimensions:
  primary:
    width: {value: 60, unit: mm}
    height: {value: 180, unit: mm}
visual_characteristics:
  primary_colors: ["#8B4513"]
materials:
  primary_material:
    type: glass
    finish: glossy
`

type fixture struct {
	db           *bun.DB
	cfg          *config.Config
	storage      filestorage.FileStorage
	queue        mq.MQ
	ledger       *Ledger
	orchestrator *Orchestrator
	specs        *specification.Service
	refs         *references.Service
	product      *models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testutil.NewConfig(t)
	db := testutil.NewDB(t)
	storage := testutil.NewStorage(t, cfg)

	queue, err := mq.NewInMemoryMQ(cfg.Generation.QueueSize)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	t.Cleanup(func() { queue.Close() })

	ledger := NewLedger(db, storage, zap.NewNop())
	return &fixture{
		db:           db,
		cfg:          cfg,
		storage:      storage,
		queue:        queue,
		ledger:       ledger,
		orchestrator: NewOrchestrator(db, ledger, queue, config.DefaultGenerateTopic, zap.NewNop()),
		specs:        specification.NewService(db, zap.NewNop()),
		refs:         references.NewService(db, storage, cfg.References, zap.NewNop()),
		product:      testutil.CreateProduct(t, db, "amber"),
	}
}

func (f *fixture) pid() string {
	return f.product.ID.String()
}

func (f *fixture) createSpec(t *testing.T, content string) *models.SpecificationVersion {
	t.Helper()

	spec, err := f.specs.Create(context.Background(), f.pid(), content, specification.CreateOptions{})
	if err != nil {
		t.Fatalf("create specification: %v", err)
	}
	return spec
}

func (f *fixture) addReference(t *testing.T, shade uint8) *models.ReferenceImage {
	t.Helper()

	img, err := f.refs.Add(context.Background(), f.pid(), references.Upload{
		Filename: "ref.png",
		Content:  testutil.PNG(t, 16, 12, shade),
	})
	if err != nil {
		t.Fatalf("add reference: %v", err)
	}
	return img
}

// submit creates a spec when the product has none and submits a job.
func (f *fixture) submit(t *testing.T, count int) *models.GenerationJob {
	t.Helper()

	ctx := context.Background()
	if active, _ := f.specs.GetActive(ctx, f.pid()); active == nil {
		f.createSpec(t, testSpec)
	}

	job, err := f.orchestrator.Submit(ctx, f.pid(), types.GenerateParamsRequest{Prompt: "studio shot", ImageCount: count})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return job
}

func (f *fixture) executor(t *testing.T, capability Capability, storage filestorage.FileStorage) *Executor {
	t.Helper()

	if storage == nil {
		storage = f.storage
	}
	uploader := fileuploader.NewFileUploader(storage, 2)
	t.Cleanup(uploader.Stop)

	return NewExecutor(f.db, f.ledger, uploader, capability, f.queue, f.cfg.Generation, zap.NewNop())
}

func (f *fixture) job(t *testing.T, id string) *models.GenerationJob {
	t.Helper()

	job, err := f.ledger.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return job
}

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: shade, G: 1, B: 2, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// fakeCapability returns n images and records the requests it saw.
type fakeCapability struct {
	n     int
	calls atomic.Int32
	last  atomic.Pointer[Request]
	t     *testing.T
}

func (c *fakeCapability) Generate(ctx context.Context, req Request) ([]Output, error) {
	c.calls.Add(1)
	c.last.Store(&req)

	outputs := make([]Output, c.n)
	for i := range outputs {
		outputs[i] = Output{Content: pngBytes(c.t, uint8(i+1)), ModelText: "revised"}
	}
	return outputs, nil
}

// failingStorage refuses to save keys that contain fail.
type failingStorage struct {
	filestorage.FileStorage
	fail string
}

func (s *failingStorage) Save(ctx context.Context, file filestorage.FileInfo) (string, error) {
	if strings.Contains(file.Name, s.fail) {
		return "", errors.New("disk full")
	}
	return s.FileStorage.Save(ctx, file)
}
