package transport

import (
	"net/http"
	"strconv"

	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	productsPerPage = 12
	maxUploadBytes  = 10 << 20
)

// CatalogHandler serves the product listing and the admin catalog operations
type CatalogHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes registers the public catalog routes and the admin routes behind admin
func (h *CatalogHandler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Get("/api/products", h.ListProducts)
	r.Get("/api/products/{slug}", h.GetProduct)
	r.Get("/api/categories", h.ListCategories)

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(admin)
		r.Post("/categories", h.CreateCategory)
		r.Post("/products", h.CreateProduct)
		r.Put("/products/{id}", h.UpdateProduct)
		r.Delete("/products/{id}", h.DeleteProduct)
		r.Post("/uploads", h.UploadImage)
	})
}

// ListProducts handles the filtered, paginated product listing
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repository.ProductFilter{
		Search: query.Get("search"),
		SortBy: query.Get("sortBy"),
		Page:   1,
		Limit:  productsPerPage,
	}

	for _, raw := range query["categories"] {
		id, err := uuid.Parse(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "Invalid category ID: "+raw)
			return
		}
		filter.CategoryIDs = append(filter.CategoryIDs, id)
	}

	var ok bool
	if filter.MinPrice, ok = parsePrice(w, query.Get("minPrice"), "minPrice"); !ok {
		return
	}
	if filter.MaxPrice, ok = parsePrice(w, query.Get("maxPrice"), "maxPrice"); !ok {
		return
	}

	if raw := query.Get("page"); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil && page > 0 {
			filter.Page = page
		}
	}

	page, err := h.catalog.ListProducts(r.Context(), filter)
	if err != nil {
		respondError(w, r, h.logger, err, "Failed to fetch products")
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, page)
}

func parsePrice(w http.ResponseWriter, raw, name string) (*decimal.Decimal, bool) {
	if raw == "" {
		return nil, true
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "Invalid "+name)
		return nil, false
	}
	return &value, true
}

// GetProduct handles the product detail page lookup
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProductBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondError(w, r, h.logger, err, "Failed to fetch product")
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, product)
}

// ListCategories handles the category listing
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err, "Failed to fetch categories")
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, categories)
}

// CreateCategory handles category creation
func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req service.CategoryInput
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithRequestError(w, err)
		return
	}

	category, err := h.catalog.CreateCategory(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err, "Failed to create category")
		return
	}

	h.logger.Info("Category created", zap.String("category_id", category.ID.String()), zap.String("slug", category.Slug))
	middleware.RespondWithSuccess(w, http.StatusCreated, category)
}

// CreateProduct handles product creation
func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.ProductInput
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithRequestError(w, err)
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err, "Failed to create product")
		return
	}

	middleware.RespondWithSuccess(w, http.StatusCreated, product)
}

// UpdateProduct handles product updates
func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req service.ProductInput
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithRequestError(w, err)
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), id, req)
	if err != nil {
		respondError(w, r, h.logger, err, "Failed to update product")
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, product)
}

// DeleteProduct handles product deletion
func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	if err := h.catalog.DeleteProduct(r.Context(), id); err != nil {
		respondError(w, r, h.logger, err, "Failed to delete product")
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, map[string]string{"id": id.String()})
}

// UploadImage handles a multipart image upload in the "file" field
func (h *CatalogHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "Invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	image, err := h.catalog.UploadImage(r.Context(), file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(w, r, h.logger, err, "Failed to upload image")
		return
	}

	middleware.RespondWithSuccess(w, http.StatusCreated, image)
}
