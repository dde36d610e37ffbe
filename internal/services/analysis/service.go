// Package analysis turns a product's reference images into a new
// specification version.
package analysis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/db/repository"
	"github.com/productstudio/studio/internal/services/filestorage"
	"github.com/productstudio/studio/internal/services/references"
	"github.com/productstudio/studio/internal/services/specification"
	"github.com/productstudio/studio/internal/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Image struct {
	MimeType string
	Content  []byte
}

// Analyzer describes a product from its images. The result is a JSON object.
type Analyzer interface {
	Analyze(ctx context.Context, productName string, images []Image) ([]byte, error)
	Model() string
}

type Service struct {
	products repository.IProductRepository
	refs     *references.Service
	specs    *specification.Service
	storage  filestorage.FileStorage
	analyzer Analyzer
	logger   *zap.Logger
}

func NewService(db *bun.DB, refs *references.Service, specs *specification.Service, storage filestorage.FileStorage, analyzer Analyzer, logger *zap.Logger) *Service {
	return &Service{
		products: repository.NewProductRepository(db),
		refs:     refs,
		specs:    specs,
		storage:  storage,
		analyzer: analyzer,
		logger:   logger.Named("analysis"),
	}
}

// Analyze describes the product from its current reference set and stores the
// result as the new active specification version.
func (s *Service) Analyze(ctx context.Context, productID string) (*models.SpecificationVersion, error) {
	pid, err := types.ParseID("product", productID)
	if err != nil {
		return nil, err
	}

	product, err := s.products.GetActiveByID(ctx, pid.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("product %s", productID)
		}
		return nil, err
	}

	selected, err := s.refs.Selected(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, types.PreconditionFailed("product %s has no reference images to analyse", productID)
	}

	images := make([]Image, 0, len(selected))
	for _, ref := range selected {
		content, err := s.storage.Read(ctx, ref.StorageHandle)
		if err != nil {
			return nil, types.ExternalFailure("read reference image", err)
		}
		images = append(images, Image{MimeType: ref.MimeType, Content: content})
	}

	s.logger.Info("analysing product",
		zap.String("product_id", productID),
		zap.Int("images", len(images)),
		zap.String("model", s.analyzer.Model()),
	)

	raw, err := s.analyzer.Analyze(ctx, product.Name, images)
	if err != nil {
		return nil, types.ExternalFailure("analyse product", err)
	}

	content, err := ToYAML(raw)
	if err != nil {
		return nil, types.ExternalFailure("parse analysis", err)
	}

	return s.specs.Create(ctx, productID, content, specification.CreateOptions{
		Note:            fmt.Sprintf("analysis of %d reference images", len(images)),
		TemplateVersion: TemplateVersion,
		AnalysisModel:   s.analyzer.Model(),
		Confidence:      specification.Summarize(content).Confidence,
		ImageCount:      len(images),
	})
}

// ToYAML re-encodes a JSON object as block style YAML. Key order is kept.
func ToYAML(raw []byte) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return "", errors.New("analysis is not a JSON object")
	}

	clearStyle(&doc)
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

func clearStyle(node *yaml.Node) {
	node.Style = 0
	for _, child := range node.Content {
		clearStyle(child)
	}
}
