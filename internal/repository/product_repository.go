package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/database"
	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrDuplicateSKU    = errors.New("product with this SKU already exists")
	ErrDuplicateSlug   = errors.New("product with this slug already exists")
)

// Sort keys accepted by Filter
const (
	SortFeatured  = "featured"
	SortNewest    = "newest"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
)

// ProductFilter narrows and pages the public product listing
type ProductFilter struct {
	Search      string
	CategoryIDs []uuid.UUID
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	SortBy      string
	Page        int
	Limit       int
}

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (*domain.Product, error)
	SlugExists(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error)
	SKUExists(ctx context.Context, sku string, excludeID *uuid.UUID) (bool, error)
	Filter(ctx context.Context, filter ProductFilter) ([]*domain.Product, int, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productSelect = `
	SELECT p.id, p.name, p.slug, p.sku, p.excerpt, p.description, p.tagline, p.ingredients,
	       p.meta_title, p.meta_description, p.meta_keywords, p.price, p.category_id,
	       p.main_image_url, p.main_image_public_id, p.main_image_alt, p.additional_images,
	       p.enable_bundle_pricing, p.created_at, p.updated_at,
	       c.id, c.name, c.slug
	FROM products p
	JOIN categories c ON c.id = p.category_id
`

// Create inserts the product with its variants and bundles in one transaction
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		additional, err := json.Marshal(product.AdditionalImages)
		if err != nil {
			return fmt.Errorf("failed to encode additional images: %w", err)
		}
		url, publicID, alt := imageColumns(product.MainImage)

		query := `
			INSERT INTO products (id, name, slug, sku, excerpt, description, tagline, ingredients,
				meta_title, meta_description, meta_keywords, price, category_id,
				main_image_url, main_image_public_id, main_image_alt, additional_images,
				enable_bundle_pricing, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		`
		_, err = tx.ExecContext(ctx, query,
			product.ID,
			product.Name,
			product.Slug,
			product.SKU,
			product.Excerpt,
			product.Description,
			product.Tagline,
			product.Ingredients,
			product.MetaTitle,
			product.MetaDescription,
			product.MetaKeywords,
			product.Price,
			product.CategoryID,
			url,
			publicID,
			alt,
			additional,
			product.EnableBundlePricing,
			product.CreatedAt,
			product.UpdatedAt,
		)
		if err != nil {
			return mapProductWriteError("create", err)
		}

		return insertVariants(ctx, tx, product)
	})
}

// Update replaces the product row and its full variant set in one transaction
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_variants WHERE product_id = $1`, product.ID); err != nil {
			return fmt.Errorf("failed to delete product variants: %w", err)
		}

		additional, err := json.Marshal(product.AdditionalImages)
		if err != nil {
			return fmt.Errorf("failed to encode additional images: %w", err)
		}
		url, publicID, alt := imageColumns(product.MainImage)

		query := `
			UPDATE products
			SET name = $2, slug = $3, sku = $4, excerpt = $5, description = $6, tagline = $7,
			    ingredients = $8, meta_title = $9, meta_description = $10, meta_keywords = $11,
			    price = $12, category_id = $13, main_image_url = $14, main_image_public_id = $15,
			    main_image_alt = $16, additional_images = $17, enable_bundle_pricing = $18
			WHERE id = $1
		`
		result, err := tx.ExecContext(ctx, query,
			product.ID,
			product.Name,
			product.Slug,
			product.SKU,
			product.Excerpt,
			product.Description,
			product.Tagline,
			product.Ingredients,
			product.MetaTitle,
			product.MetaDescription,
			product.MetaKeywords,
			product.Price,
			product.CategoryID,
			url,
			publicID,
			alt,
			additional,
			product.EnableBundlePricing,
		)
		if err != nil {
			return mapProductWriteError("update", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrProductNotFound
		}

		return insertVariants(ctx, tx, product)
	})
}

// Delete removes a product; variants and bundles cascade
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM products WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// FindByID retrieves a product with every variant and bundle, active or not
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := scanProduct(r.db.QueryRowContext(ctx, productSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	if product.Variants, err = loadVariants(ctx, r.db, product.ID, false); err != nil {
		return nil, err
	}
	return product, nil
}

// FindBySlug retrieves a product with its active variants and bundles
func (r *productRepository) FindBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	product, err := scanProduct(r.db.QueryRowContext(ctx, productSelect+` WHERE p.slug = $1`, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by slug: %w", err)
	}

	if product.Variants, err = loadVariants(ctx, r.db, product.ID, true); err != nil {
		return nil, err
	}
	return product, nil
}

// SlugExists reports whether another product uses slug
func (r *productRepository) SlugExists(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE slug = $1 AND ($2::uuid IS NULL OR id <> $2::uuid))`,
		slug, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check product slug: %w", err)
	}
	return exists, nil
}

// SKUExists reports whether another product uses sku
func (r *productRepository) SKUExists(ctx context.Context, sku string, excludeID *uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE sku = $1 AND ($2::uuid IS NULL OR id <> $2::uuid))`,
		sku, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check product SKU: %w", err)
	}
	return exists, nil
}

// Filter returns one page of products matching filter and the total match count
func (r *productRepository) Filter(ctx context.Context, filter ProductFilter) ([]*domain.Product, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 12
	}

	// Build the WHERE clause
	conditions := []string{}
	args := []any{}
	argIndex := 1

	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(p.name ILIKE $%[1]d OR p.description ILIKE $%[1]d OR p.tagline ILIKE $%[1]d OR p.excerpt ILIKE $%[1]d OR p.meta_keywords ILIKE $%[1]d)",
			argIndex))
		args = append(args, "%"+search+"%")
		argIndex++
	}

	if len(filter.CategoryIDs) > 0 {
		placeholders := make([]string, len(filter.CategoryIDs))
		for i, id := range filter.CategoryIDs {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, id)
			argIndex++
		}
		conditions = append(conditions, "p.category_id IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.MinPrice != nil {
		conditions = append(conditions, fmt.Sprintf("p.price >= $%d", argIndex))
		args = append(args, *filter.MinPrice)
		argIndex++
	}

	if filter.MaxPrice != nil {
		conditions = append(conditions, fmt.Sprintf("p.price <= $%d", argIndex))
		args = append(args, *filter.MaxPrice)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total products
	var total int
	countQuery := "SELECT COUNT(*) FROM products p " + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	orderBy := "p.created_at DESC"
	switch filter.SortBy {
	case SortPriceLow:
		orderBy = "p.price ASC"
	case SortPriceHigh:
		orderBy = "p.price DESC"
	}

	query := fmt.Sprintf("%s %s ORDER BY %s, p.id LIMIT $%d OFFSET $%d",
		productSelect, whereClause, orderBy, argIndex, argIndex+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to filter products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}

	for _, product := range products {
		if product.Variants, err = loadVariants(ctx, r.db, product.ID, true); err != nil {
			return nil, 0, err
		}
	}

	return products, total, nil
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{Category: &domain.Category{}}
	var url, publicID, alt sql.NullString
	var additional []byte

	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Slug,
		&product.SKU,
		&product.Excerpt,
		&product.Description,
		&product.Tagline,
		&product.Ingredients,
		&product.MetaTitle,
		&product.MetaDescription,
		&product.MetaKeywords,
		&product.Price,
		&product.CategoryID,
		&url,
		&publicID,
		&alt,
		&additional,
		&product.EnableBundlePricing,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Category.ID,
		&product.Category.Name,
		&product.Category.Slug,
	)
	if err != nil {
		return nil, err
	}

	product.MainImage = imageFromColumns(url, publicID, alt)
	if len(additional) > 0 {
		if err := json.Unmarshal(additional, &product.AdditionalImages); err != nil {
			return nil, fmt.Errorf("failed to decode additional images: %w", err)
		}
	}
	return product, nil
}

func loadVariants(ctx context.Context, q querier, productID uuid.UUID, activeOnly bool) ([]domain.ProductVariant, error) {
	activeClause := ""
	if activeOnly {
		activeClause = " AND active = TRUE"
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, name, price, sku, active, created_at, updated_at
		FROM product_variants
		WHERE product_id = $1`+activeClause+`
		ORDER BY price ASC, created_at ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product variants: %w", err)
	}
	defer rows.Close()

	variants := []domain.ProductVariant{}
	for rows.Next() {
		var v domain.ProductVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &v.SKU, &v.Active, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product variant: %w", err)
		}
		v.Bundles = []domain.ProductBundle{}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product variants: %w", err)
	}
	if len(variants) == 0 {
		return variants, nil
	}

	bundleActive := ""
	if activeOnly {
		bundleActive = " AND b.active = TRUE"
	}
	bundleRows, err := q.QueryContext(ctx, `
		SELECT b.id, b.variant_id, b.label, b.quantity, b.selling_price, b.original_price,
		       b.savings_amount, b.badge, b.is_default, b.is_secondary_default, b.active,
		       b.created_at, b.updated_at
		FROM product_bundles b
		JOIN product_variants v ON v.id = b.variant_id
		WHERE v.product_id = $1`+bundleActive+`
		ORDER BY b.quantity ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product bundles: %w", err)
	}
	defer bundleRows.Close()

	index := make(map[uuid.UUID]int, len(variants))
	for i := range variants {
		index[variants[i].ID] = i
	}

	for bundleRows.Next() {
		var b domain.ProductBundle
		err := bundleRows.Scan(
			&b.ID, &b.VariantID, &b.Label, &b.Quantity, &b.SellingPrice, &b.OriginalPrice,
			&b.SavingsAmount, &b.Badge, &b.IsDefault, &b.IsSecondaryDefault, &b.Active,
			&b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product bundle: %w", err)
		}
		if i, ok := index[b.VariantID]; ok {
			variants[i].Bundles = append(variants[i].Bundles, b)
		}
	}
	if err := bundleRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product bundles: %w", err)
	}

	return variants, nil
}

func insertVariants(ctx context.Context, tx *sql.Tx, product *domain.Product) error {
	for i := range product.Variants {
		v := &product.Variants[i]
		v.ProductID = product.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO product_variants (id, product_id, name, price, sku, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			v.ID, v.ProductID, v.Name, v.Price, v.SKU, v.Active, v.CreatedAt, v.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create product variant: %w", err)
		}

		for j := range v.Bundles {
			b := &v.Bundles[j]
			b.VariantID = v.ID
			_, err := tx.ExecContext(ctx, `
				INSERT INTO product_bundles (id, variant_id, label, quantity, selling_price, original_price,
					savings_amount, badge, is_default, is_secondary_default, active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				b.ID, b.VariantID, b.Label, b.Quantity, b.SellingPrice, b.OriginalPrice,
				b.SavingsAmount, b.Badge, b.IsDefault, b.IsSecondaryDefault, b.Active,
				b.CreatedAt, b.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to create product bundle: %w", err)
			}
		}
	}
	return nil
}

func mapProductWriteError(op string, err error) error {
	switch {
	case isUniqueViolation(err, "products_sku_key"):
		return ErrDuplicateSKU
	case isUniqueViolation(err, "products_slug_key"):
		return ErrDuplicateSlug
	}
	return fmt.Errorf("failed to %s product: %w", op, err)
}
