package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Repository reads product and location master data from PostgreSQL.
// This core only consumes the directory; maintenance is an external concern.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProduct loads an active product by id within the tenant.
func (r *Repository) GetProduct(ctx context.Context, tenantID, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, sku, name, pricing_method, min_price, max_price, is_active, created_at
FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.PricingMethod, &p.MinPrice, &p.MaxPrice, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
		}
		return Product{}, err
	}
	return p, nil
}

// GetLocation loads an active location by id within the tenant.
func (r *Repository) GetLocation(ctx context.Context, tenantID, id int64) (Location, error) {
	var l Location
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, code, name, is_active
FROM locations WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&l.ID, &l.TenantID, &l.Code, &l.Name, &l.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, fmt.Errorf("location %d: %w", id, shared.ErrNotFound)
		}
		return Location{}, err
	}
	return l, nil
}
