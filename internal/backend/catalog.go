package backend

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Catalog is the product table the backend loads its stock from.
type Catalog struct {
	db *sql.DB
}

func OpenCatalog(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Catalog{db: db}, nil
}

func (c *Catalog) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not read migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(c.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (c *Catalog) Products(ctx context.Context) ([]domain.Product, error) {
	query := `
		SELECT id, name, basic_price, stock, gst_percentage
		FROM products
		ORDER BY id
	`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var (
			p     domain.Product
			price string
			gst   sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Stock, &gst); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if p.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("product %s: invalid price %q: %w", p.ID, price, err)
		}
		if gst.Valid {
			rate, err := decimal.NewFromString(gst.String)
			if err != nil {
				return nil, fmt.Errorf("product %s: invalid gst %q: %w", p.ID, gst.String, err)
			}
			p.GSTPercent = decimal.NewNullDecimal(rate)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

// Seed loads every catalog product into the store.
func (c *Catalog) Seed(ctx context.Context, s *MemoryStore) (int, error) {
	products, err := c.Products(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range products {
		s.SetProduct(p)
	}
	return len(products), nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
