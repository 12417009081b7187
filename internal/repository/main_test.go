package repository

import (
	"context"
	"database/sql"
	"log"
	"testing"
	"time"

	"storefront/internal/database"
	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var testDB *sql.DB

func setupTestDB() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "testdb"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:15",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	connStr, err := dbContainer.ConnectionString(context.Background(), "sslmode=disable")
	if err != nil {
		return dbContainer.Terminate, err
	}

	testDB, err = sql.Open("pgx", connStr)
	if err != nil {
		return dbContainer.Terminate, err
	}

	if err := database.RunMigrations(testDB, "../../migrations", zap.NewNop()); err != nil {
		return dbContainer.Terminate, err
	}

	return dbContainer.Terminate, nil
}

func TestMain(m *testing.M) {
	teardown, err := setupTestDB()
	if err != nil {
		if teardown != nil {
			_ = teardown(context.Background())
		}
		log.Fatalf("could not start postgres container: %v", err)
	}

	code := m.Run()

	if testDB != nil {
		testDB.Close()
	}
	if err := teardown(context.Background()); err != nil {
		log.Printf("could not teardown postgres container: %v", err)
	}

	if code != 0 {
		log.Fatalf("tests failed with code %d", code)
	}
}

func createTestCategory(t *testing.T) *domain.Category {
	t.Helper()
	now := time.Now().UTC()
	id := uuid.New()
	category := &domain.Category{
		ID:        id,
		Name:      "Snacks " + id.String(),
		Slug:      "snacks-" + id.String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := NewCategoryRepository(testDB).Create(context.Background(), category); err != nil {
		t.Fatalf("Failed to create category: %v", err)
	}
	return category
}

func newTestProduct(categoryID uuid.UUID, name string, price decimal.Decimal) *domain.Product {
	now := time.Now().UTC()
	id := uuid.New()
	variantID := uuid.New()

	pricing, _ := domain.NewBundlePricing(price, 2, price.Mul(decimal.NewFromInt(2)).Sub(decimal.NewFromInt(50)))
	bundle := domain.ProductBundle{
		ID:        uuid.New(),
		VariantID: variantID,
		Label:     "Pack of 2",
		Quantity:  2,
		Badge:     domain.BundleBadgeBestSeller,
		IsDefault: true,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	pricing.Apply(&bundle)

	return &domain.Product{
		ID:          id,
		Name:        name,
		Slug:        "product-" + id.String(),
		Description: "Crunchy roasted makhana",
		Price:       price,
		CategoryID:  categoryID,
		MainImage:   &domain.Image{URL: "https://cdn.example.com/products/a.jpg", PublicID: "products/a.jpg"},
		Variants: []domain.ProductVariant{{
			ID:        variantID,
			ProductID: id,
			Name:      "100g",
			Price:     price,
			Active:    true,
			Bundles:   []domain.ProductBundle{bundle},
			CreatedAt: now,
			UpdatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
