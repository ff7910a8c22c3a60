package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
)

const formColumns = "id, domain, form_type, description, version, created_at"

type inventoryFormRepository struct {
	s *Store
}

func (r *inventoryFormRepository) products() *productRepository {
	return &productRepository{s: r.s}
}

func (r *inventoryFormRepository) Create(ctx context.Context, form *entity.InventoryForm) error {
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.products().adjustBatch(ctx, tx, form.Domain, form.Deltas()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, r.s.rebind(
			"INSERT INTO inventory_forms (id, domain, form_type, description, created_at) VALUES (?, ?, ?, ?, ?)"),
			form.ID, form.Domain, form.Type, form.Description, form.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert inventory form: %w", r.s.translate(err))
		}
		return r.insertLines(ctx, tx, form)
	})
}

func (r *inventoryFormRepository) insertLines(ctx context.Context, tx *sql.Tx, form *entity.InventoryForm) error {
	for i, l := range form.Lines {
		_, err := tx.ExecContext(ctx, r.s.rebind(
			"INSERT INTO inventory_form_lines (form_id, position, product_id, quantity) VALUES (?, ?, ?, ?)"),
			form.ID, i, l.ProductID, l.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert inventory line: %w", r.s.translate(err))
		}
	}
	return nil
}

func (r *inventoryFormRepository) Get(ctx context.Context, id string) (*entity.InventoryForm, error) {
	var f entity.InventoryForm
	err := r.s.db.QueryRowContext(ctx, r.s.rebind(
		"SELECT "+formColumns+" FROM inventory_forms WHERE id = ?"), id,
	).Scan(&f.ID, &f.Domain, &f.Type, &f.Description, &f.Version, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory form %s: %w", id, r.s.translate(err))
	}
	if f.Lines, err = r.lines(ctx, f.ID); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *inventoryFormRepository) lines(ctx context.Context, formID string) ([]entity.InventoryLine, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(
		"SELECT product_id, quantity FROM inventory_form_lines WHERE form_id = ? ORDER BY position"), formID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory lines: %w", err)
	}
	defer rows.Close()

	var lines []entity.InventoryLine
	for rows.Next() {
		var l entity.InventoryLine
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan inventory line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *inventoryFormRepository) List(ctx context.Context, domain string, formType entity.InventoryFormType) ([]entity.InventoryForm, error) {
	query := "SELECT " + formColumns + " FROM inventory_forms WHERE domain = ?"
	args := []any{domain}
	if formType != "" {
		query += " AND form_type = ?"
		args = append(args, formType)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory forms: %w", err)
	}
	var forms []entity.InventoryForm
	for rows.Next() {
		var f entity.InventoryForm
		if err := rows.Scan(&f.ID, &f.Domain, &f.Type, &f.Description, &f.Version, &f.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan inventory form: %w", err)
		}
		forms = append(forms, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range forms {
		if forms[i].Lines, err = r.lines(ctx, forms[i].ID); err != nil {
			return nil, err
		}
	}
	return forms, nil
}

// Update bumps the version only if it still equals form.Version, so of two
// updates computed from the same read exactly one applies its deltas.
func (r *inventoryFormRepository) Update(ctx context.Context, form *entity.InventoryForm, deltas []entity.StockDelta) error {
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.s.rebind(
			"UPDATE inventory_forms SET description = ?, version = version + 1 WHERE id = ? AND version = ?"),
			form.Description, form.ID, form.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update inventory form: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return r.explainMiss(ctx, tx, form.ID)
		}

		if err := r.products().adjustBatch(ctx, tx, form.Domain, deltas); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.s.rebind(
			"DELETE FROM inventory_form_lines WHERE form_id = ?"), form.ID); err != nil {
			return fmt.Errorf("failed to clear inventory lines: %w", err)
		}
		return r.insertLines(ctx, tx, form)
	})
	if err != nil {
		return err
	}
	form.Version++
	return nil
}

func (r *inventoryFormRepository) explainMiss(ctx context.Context, q querier, id string) error {
	var one int
	err := q.QueryRowContext(ctx, r.s.rebind("SELECT 1 FROM inventory_forms WHERE id = ?"), id).Scan(&one)
	if err != nil {
		return fmt.Errorf("inventory form %s: %w", id, r.s.translate(err))
	}
	return fmt.Errorf("inventory form %s: %w", id, entity.ErrConflict)
}

func (r *inventoryFormRepository) Delete(ctx context.Context, id string) error {
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.s.rebind(
			"DELETE FROM inventory_form_lines WHERE form_id = ?"), id); err != nil {
			return fmt.Errorf("failed to delete inventory lines: %w", err)
		}
		res, err := tx.ExecContext(ctx, r.s.rebind("DELETE FROM inventory_forms WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("failed to delete inventory form: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("inventory form %s: %w", id, entity.ErrNotFound)
		}
		return nil
	})
}
