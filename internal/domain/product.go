package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrBundlePriceNotDiscounted is returned when a bundle's selling price is not below the
	// undiscounted price of its units.
	ErrBundlePriceNotDiscounted = errors.New("selling price must be less than original price")
	ErrInvalidBundleQuantity    = errors.New("bundle quantity must be at least 1")
)

// BundleBadge is the marketing badge shown on a bundle
type BundleBadge string

const (
	BundleBadgeNone       BundleBadge = "NONE"
	BundleBadgeBestSeller BundleBadge = "BEST_SELLER"
	BundleBadgeSuperSaver BundleBadge = "SUPER_SAVER"
)

// Image references an asset held by the object storage provider
type Image struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
	AltText  string `json:"altText,omitempty"`
}

// Category represents a product category
type Category struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Image     *Image    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Product represents a product in the catalog
type Product struct {
	ID                  uuid.UUID        `json:"id"`
	Name                string           `json:"name"`
	Slug                string           `json:"slug"`
	SKU                 *string          `json:"sku,omitempty"`
	Excerpt             string           `json:"excerpt,omitempty"`
	Description         string           `json:"description"`
	Tagline             string           `json:"tagline,omitempty"`
	Ingredients         string           `json:"ingredients,omitempty"`
	MetaTitle           string           `json:"metaTitle,omitempty"`
	MetaDescription     string           `json:"metaDescription,omitempty"`
	MetaKeywords        string           `json:"metaKeywords,omitempty"`
	Price               decimal.Decimal  `json:"price"`
	CategoryID          uuid.UUID        `json:"categoryId"`
	Category            *Category        `json:"category,omitempty"`
	MainImage           *Image           `json:"mainImage,omitempty"`
	AdditionalImages    []Image          `json:"additionalImages,omitempty"`
	EnableBundlePricing bool             `json:"enableBundlePricing"`
	Variants            []ProductVariant `json:"variants,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// ProductVariant is a named size/SKU option of a product
type ProductVariant struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	SKU       *string         `json:"sku,omitempty"`
	Active    bool            `json:"active"`
	Bundles   []ProductBundle `json:"bundles"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ProductBundle is a pack of Quantity units of a variant sold at SellingPrice
type ProductBundle struct {
	ID                 uuid.UUID       `json:"id"`
	VariantID          uuid.UUID       `json:"variantId"`
	Label              string          `json:"label"`
	Quantity           int             `json:"quantity"`
	SellingPrice       decimal.Decimal `json:"sellingPrice"`
	OriginalPrice      decimal.Decimal `json:"originalPrice"`
	SavingsAmount      decimal.Decimal `json:"savingsAmount"`
	Badge              BundleBadge     `json:"badge"`
	IsDefault          bool            `json:"isDefault"`
	IsSecondaryDefault bool            `json:"isSecondaryDefault"`
	Active             bool            `json:"active"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// BundlePricing holds the derived price fields of a bundle
type BundlePricing struct {
	SellingPrice  decimal.Decimal
	OriginalPrice decimal.Decimal
	SavingsAmount decimal.Decimal
}

// NewBundlePricing derives originalPrice = variantPrice x quantity and
// savingsAmount = originalPrice - sellingPrice. The selling price must be strictly
// lower than the original price.
func NewBundlePricing(variantPrice decimal.Decimal, quantity int, sellingPrice decimal.Decimal) (BundlePricing, error) {
	if quantity < 1 {
		return BundlePricing{}, ErrInvalidBundleQuantity
	}

	original := variantPrice.Mul(decimal.NewFromInt(int64(quantity)))
	if sellingPrice.GreaterThanOrEqual(original) {
		return BundlePricing{}, fmt.Errorf("%w (₹%s)", ErrBundlePriceNotDiscounted, original.StringFixed(2))
	}

	return BundlePricing{
		SellingPrice:  sellingPrice,
		OriginalPrice: original,
		SavingsAmount: original.Sub(sellingPrice),
	}, nil
}

// Apply copies the derived prices onto the bundle
func (p BundlePricing) Apply(b *ProductBundle) {
	b.SellingPrice = p.SellingPrice
	b.OriginalPrice = p.OriginalPrice
	b.SavingsAmount = p.SavingsAmount
}

// NormalizeDefaultBundles keeps the default and secondary default flags on the first
// bundle that claims them and clears the rest.
func NormalizeDefaultBundles(bundles []ProductBundle) {
	seenDefault, seenSecondary := false, false
	for i := range bundles {
		if bundles[i].IsDefault {
			if seenDefault {
				bundles[i].IsDefault = false
			}
			seenDefault = true
		}
		if bundles[i].IsSecondaryDefault {
			if seenSecondary {
				bundles[i].IsSecondaryDefault = false
			}
			seenSecondary = true
		}
	}
}

// FindVariant returns the variant with the given id, or nil
func (p *Product) FindVariant(id uuid.UUID) *ProductVariant {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}

// FindBundle returns the bundle with the given id, or nil
func (v *ProductVariant) FindBundle(id uuid.UUID) *ProductBundle {
	for i := range v.Bundles {
		if v.Bundles[i].ID == id {
			return &v.Bundles[i]
		}
	}
	return nil
}
