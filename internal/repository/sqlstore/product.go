package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
)

const productColumns = "id, domain, name, description, images, price, quantity, sold"

type productRepository struct {
	s *Store
}

func scanProduct(row interface{ Scan(...any) error }) (*entity.Product, error) {
	var (
		p      entity.Product
		images string
	)
	if err := row.Scan(&p.ID, &p.Domain, &p.Name, &p.Description, &images, &p.Price, &p.Quantity, &p.Sold); err != nil {
		return nil, err
	}
	if images != "" {
		if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
			return nil, fmt.Errorf("failed to decode product images: %w", err)
		}
	}
	return &p, nil
}

func encodeImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("failed to encode product images: %w", err)
	}
	return string(b), nil
}

func (r *productRepository) Get(ctx context.Context, id, domain string) (*entity.Product, error) {
	row := r.s.db.QueryRowContext(ctx,
		r.s.rebind("SELECT "+productColumns+" FROM products WHERE id = ? AND domain = ?"),
		id, domain,
	)
	p, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", id, r.s.translate(err))
	}
	return p, nil
}

func (r *productRepository) Create(ctx context.Context, p *entity.Product) error {
	return r.insert(ctx, r.s.db, p, false)
}

func (r *productRepository) insert(ctx context.Context, q querier, p *entity.Product, ignoreExisting bool) error {
	images, err := encodeImages(p.Images)
	if err != nil {
		return err
	}
	query := "INSERT INTO products (" + productColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	if ignoreExisting {
		query += " ON CONFLICT (id) DO NOTHING"
	}
	_, err = q.ExecContext(ctx, r.s.rebind(query),
		p.ID, p.Domain, p.Name, p.Description, images, p.Price, p.Quantity, p.Sold,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product %s: %w", p.ID, r.s.translate(err))
	}
	return nil
}

func (r *productRepository) Adjust(ctx context.Context, id string, quantityDelta, soldDelta int) (*entity.Product, error) {
	row := r.s.db.QueryRowContext(ctx, r.s.rebind(
		"UPDATE products SET quantity = quantity + ?, sold = sold + ? "+
			"WHERE id = ? AND quantity + ? >= 0 AND sold + ? >= 0 "+
			"RETURNING "+productColumns),
		quantityDelta, soldDelta, id, quantityDelta, soldDelta,
	)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.explainMiss(ctx, r.s.db, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to adjust product %s: %w", id, r.s.translate(err))
	}
	return p, nil
}

func (r *productRepository) AdjustBatch(ctx context.Context, domain string, deltas []entity.StockDelta) error {
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		return r.adjustBatch(ctx, tx, domain, deltas)
	})
}

// adjustBatch applies the deltas with conditional updates on q. The caller
// owns the transaction and rolls back on error.
func (r *productRepository) adjustBatch(ctx context.Context, q querier, domain string, deltas []entity.StockDelta) error {
	for _, d := range deltas {
		if d.Quantity == 0 {
			continue
		}
		res, err := q.ExecContext(ctx, r.s.rebind(
			"UPDATE products SET quantity = quantity + ? WHERE id = ? AND domain = ? AND quantity + ? >= 0"),
			d.Quantity, d.ProductID, domain, d.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to adjust product %s: %w", d.ProductID, r.s.translate(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return r.explainMiss(ctx, q, d.ProductID)
		}
	}
	return nil
}

// explainMiss tells apart a missing product from a failed stock condition.
func (r *productRepository) explainMiss(ctx context.Context, q querier, id string) error {
	var one int
	err := q.QueryRowContext(ctx, r.s.rebind("SELECT 1 FROM products WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %s: %w", id, entity.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check product %s: %w", id, err)
	}
	return fmt.Errorf("product %s: %w", id, entity.ErrInsufficientStock)
}

func (r *productRepository) Seed(ctx context.Context, products []entity.Product) error {
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		for i := range products {
			if err := r.insert(ctx, tx, &products[i], true); err != nil {
				return fmt.Errorf("failed to seed product %s: %w", products[i].ID, err)
			}
		}
		return nil
	})
}
