package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/storage"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxSlugSuffix = 1000

var ErrImageStorageUnavailable = errors.New("image storage is not configured")

// CategoryInput is the payload for creating a category
type CategoryInput struct {
	Name  string        `json:"name" validate:"required,min=2,max=100"`
	Image *domain.Image `json:"image,omitempty"`
}

// BundleInput is one submitted bundle of a variant
type BundleInput struct {
	Label              string             `json:"label" validate:"required,max=100"`
	Quantity           int                `json:"quantity" validate:"required,min=1"`
	SellingPrice       decimal.Decimal    `json:"sellingPrice"`
	Badge              domain.BundleBadge `json:"badge" validate:"omitempty,oneof=NONE BEST_SELLER SUPER_SAVER"`
	IsDefault          bool               `json:"isDefault"`
	IsSecondaryDefault bool               `json:"isSecondaryDefault"`
	Active             *bool              `json:"active,omitempty"`
}

// VariantInput is one submitted variant of a product
type VariantInput struct {
	Name    string          `json:"name" validate:"required,max=100"`
	Price   decimal.Decimal `json:"price"`
	SKU     *string         `json:"sku,omitempty" validate:"omitempty,max=100"`
	Active  *bool           `json:"active,omitempty"`
	Bundles []BundleInput   `json:"bundles" validate:"dive"`
}

// ProductInput is the payload for creating or updating a product
type ProductInput struct {
	Name                string          `json:"name" validate:"required,min=2,max=200"`
	SKU                 *string         `json:"sku,omitempty" validate:"omitempty,max=100"`
	Excerpt             string          `json:"excerpt" validate:"max=500"`
	Description         string          `json:"description" validate:"required"`
	Tagline             string          `json:"tagline" validate:"max=200"`
	Ingredients         string          `json:"ingredients"`
	MetaTitle           string          `json:"metaTitle" validate:"max=200"`
	MetaDescription     string          `json:"metaDescription" validate:"max=500"`
	MetaKeywords        string          `json:"metaKeywords" validate:"max=500"`
	Price               decimal.Decimal `json:"price"`
	CategoryID          uuid.UUID       `json:"categoryId" validate:"required"`
	MainImage           *domain.Image   `json:"mainImage,omitempty"`
	AdditionalImages    []domain.Image  `json:"additionalImages,omitempty"`
	EnableBundlePricing bool            `json:"enableBundlePricing"`
	Variants            []VariantInput  `json:"variants" validate:"dive"`
}

// ProductPage is one page of the public product listing
type ProductPage struct {
	Products   []*domain.Product `json:"products"`
	TotalCount int               `json:"totalCount"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	HasMore    bool              `json:"hasMore"`
}

// CatalogService defines the interface for catalog business logic
type CatalogService interface {
	CreateCategory(ctx context.Context, input CategoryInput) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]*domain.Category, error)
	CreateProduct(ctx context.Context, input ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter repository.ProductFilter) (*ProductPage, error)
	UploadImage(ctx context.Context, body io.Reader, filename, contentType string) (*domain.Image, error)
}

type catalogService struct {
	categoryRepo repository.CategoryRepository
	productRepo  repository.ProductRepository
	images       storage.ImageStore
	logger       *zap.Logger
	now          func() time.Time
}

// NewCatalogService creates a new instance of CatalogService. images may be nil when
// object storage is not configured.
func NewCatalogService(
	categoryRepo repository.CategoryRepository,
	productRepo repository.ProductRepository,
	images storage.ImageStore,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		categoryRepo: categoryRepo,
		productRepo:  productRepo,
		images:       images,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateCategory stores a category with a slug derived from its name
func (s *catalogService) CreateCategory(ctx context.Context, input CategoryInput) (*domain.Category, error) {
	slugValue, err := uniqueSlug(input.Name, "category", func(candidate string) (bool, error) {
		return s.categoryRepo.SlugExists(ctx, candidate)
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	category := &domain.Category{
		ID:        uuid.New(),
		Name:      input.Name,
		Slug:      slugValue,
		Image:     input.Image,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, err
	}

	s.logger.Info("Category created", zap.String("category_id", category.ID.String()), zap.String("slug", category.Slug))
	return category, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	return s.categoryRepo.List(ctx)
}

// CreateProduct validates the payload, derives the slug and bundle prices and stores the
// product with its variants in one write.
func (s *catalogService) CreateProduct(ctx context.Context, input ProductInput) (*domain.Product, error) {
	if err := validateProductPrices(input); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, input.CategoryID); err != nil {
		return nil, err
	}
	if err := s.checkSKU(ctx, input.SKU, nil); err != nil {
		return nil, err
	}

	slugValue, err := uniqueSlug(input.Name, "product", func(candidate string) (bool, error) {
		return s.productRepo.SlugExists(ctx, candidate, nil)
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	product := &domain.Product{
		ID:        uuid.New(),
		Slug:      slugValue,
		CreatedAt: now,
	}
	if err := applyProductInput(product, input, now); err != nil {
		return nil, err
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("slug", product.Slug),
		zap.Int("variants", len(product.Variants)),
	)
	return product, nil
}

// UpdateProduct replaces the product and its full variant set. The slug is regenerated
// only when the name changes.
func (s *catalogService) UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (*domain.Product, error) {
	existing, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateProductPrices(input); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, input.CategoryID); err != nil {
		return nil, err
	}
	if err := s.checkSKU(ctx, input.SKU, &id); err != nil {
		return nil, err
	}

	if input.Name != existing.Name {
		existing.Slug, err = uniqueSlug(input.Name, "product", func(candidate string) (bool, error) {
			return s.productRepo.SlugExists(ctx, candidate, &id)
		})
		if err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	if err := applyProductInput(existing, input, now); err != nil {
		return nil, err
	}

	if err := s.productRepo.Update(ctx, existing); err != nil {
		return nil, err
	}

	s.logger.Info("Product updated",
		zap.String("product_id", existing.ID.String()),
		zap.Int("variants", len(existing.Variants)),
	)
	return existing, nil
}

// DeleteProduct removes the product and then, best effort, its stored images
func (s *catalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.productRepo.Delete(ctx, id); err != nil {
		return err
	}

	if s.images != nil {
		for _, publicID := range productImageIDs(product) {
			if err := s.images.Delete(ctx, publicID); err != nil {
				s.logger.Warn("Failed to delete product image",
					zap.String("product_id", id.String()),
					zap.String("public_id", publicID),
					zap.Error(err),
				)
			}
		}
	}

	s.logger.Info("Product deleted", zap.String("product_id", id.String()))
	return nil
}

func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.productRepo.FindByID(ctx, id)
}

func (s *catalogService) GetProductBySlug(ctx context.Context, slugValue string) (*domain.Product, error) {
	return s.productRepo.FindBySlug(ctx, slugValue)
}

// ListProducts returns one page of the filtered listing
func (s *catalogService) ListProducts(ctx context.Context, filter repository.ProductFilter) (*ProductPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 12
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return nil, invalidf("minPrice must not exceed maxPrice")
	}

	products, total, err := s.productRepo.Filter(ctx, filter)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []*domain.Product{}
	}

	return &ProductPage{
		Products:   products,
		TotalCount: total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		HasMore:    filter.Page*filter.Limit < total,
	}, nil
}

// UploadImage stores a product image with the object storage provider
func (s *catalogService) UploadImage(ctx context.Context, body io.Reader, filename, contentType string) (*domain.Image, error) {
	if s.images == nil {
		return nil, ErrImageStorageUnavailable
	}
	img, err := s.images.Upload(ctx, body, filename, contentType)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImageType) {
			return nil, invalidf("%s", err.Error())
		}
		return nil, err
	}
	return img, nil
}

func (s *catalogService) checkCategory(ctx context.Context, id uuid.UUID) error {
	if _, err := s.categoryRepo.FindByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return invalidf("Category not found: %s", id)
		}
		return err
	}
	return nil
}

func (s *catalogService) checkSKU(ctx context.Context, sku *string, excludeID *uuid.UUID) error {
	if sku == nil || *sku == "" {
		return nil
	}
	exists, err := s.productRepo.SKUExists(ctx, *sku, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return repository.ErrDuplicateSKU
	}
	return nil
}

// uniqueSlug derives a slug from name and appends -1, -2, ... until exists reports it free
func uniqueSlug(name, fallback string, exists func(string) (bool, error)) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = fallback
	}

	candidate := base
	for n := 1; n <= maxSlugSuffix; n++ {
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return "", fmt.Errorf("failed to find a free slug for %q", name)
}

func validateProductPrices(input ProductInput) error {
	if !input.Price.IsPositive() {
		return invalidf("Price must be greater than 0")
	}
	for _, v := range input.Variants {
		if !v.Price.IsPositive() {
			return invalidf("Variant %q: price must be greater than 0", v.Name)
		}
		for _, b := range v.Bundles {
			if !b.SellingPrice.IsPositive() {
				return invalidf("Bundle %q: selling price must be greater than 0", b.Label)
			}
		}
	}
	return nil
}

// applyProductInput copies input onto product and rebuilds the variant set with fresh ids
func applyProductInput(product *domain.Product, input ProductInput, now time.Time) error {
	product.Name = input.Name
	product.SKU = input.SKU
	if product.SKU != nil && *product.SKU == "" {
		product.SKU = nil
	}
	product.Excerpt = input.Excerpt
	product.Description = input.Description
	product.Tagline = input.Tagline
	product.Ingredients = input.Ingredients
	product.MetaTitle = input.MetaTitle
	product.MetaDescription = input.MetaDescription
	product.MetaKeywords = input.MetaKeywords
	product.Price = input.Price
	product.CategoryID = input.CategoryID
	product.MainImage = input.MainImage
	product.AdditionalImages = input.AdditionalImages
	product.EnableBundlePricing = input.EnableBundlePricing
	product.UpdatedAt = now

	variants := make([]domain.ProductVariant, 0, len(input.Variants))
	for _, vin := range input.Variants {
		variant := domain.ProductVariant{
			ID:        uuid.New(),
			ProductID: product.ID,
			Name:      vin.Name,
			Price:     vin.Price,
			SKU:       vin.SKU,
			Active:    vin.Active == nil || *vin.Active,
			CreatedAt: now,
			UpdatedAt: now,
		}

		for _, bin := range vin.Bundles {
			pricing, err := domain.NewBundlePricing(vin.Price, bin.Quantity, bin.SellingPrice)
			if err != nil {
				return invalidf("Bundle %q of variant %q: %s", bin.Label, vin.Name, err.Error())
			}

			badge := bin.Badge
			if badge == "" {
				badge = domain.BundleBadgeNone
			}
			bundle := domain.ProductBundle{
				ID:                 uuid.New(),
				VariantID:          variant.ID,
				Label:              bin.Label,
				Quantity:           bin.Quantity,
				Badge:              badge,
				IsDefault:          bin.IsDefault,
				IsSecondaryDefault: bin.IsSecondaryDefault,
				Active:             bin.Active == nil || *bin.Active,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			pricing.Apply(&bundle)
			variant.Bundles = append(variant.Bundles, bundle)
		}

		domain.NormalizeDefaultBundles(variant.Bundles)
		variants = append(variants, variant)
	}
	product.Variants = variants
	return nil
}

func productImageIDs(product *domain.Product) []string {
	var ids []string
	if product.MainImage != nil && product.MainImage.PublicID != "" {
		ids = append(ids, product.MainImage.PublicID)
	}
	for _, img := range product.AdditionalImages {
		if img.PublicID != "" {
			ids = append(ids, img.PublicID)
		}
	}
	return ids
}
