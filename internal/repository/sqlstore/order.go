package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
)

const orderColumns = "id, domain, user_email, stage, total_price, voucher_id, voucher_discount, price_after_voucher, " +
	"phone, address, payment_method, note_cancel, stock_committed, created_at, updated_at"

type orderRepository struct {
	s *Store
}

func scanOrder(row interface{ Scan(...any) error }) (*entity.Order, error) {
	var o entity.Order
	err := row.Scan(&o.ID, &o.Domain, &o.UserEmail, &o.Stage, &o.TotalPrice, &o.VoucherID, &o.VoucherDiscount,
		&o.PriceAfterVoucher, &o.Phone, &o.Address, &o.PaymentMethod, &o.NoteCancel, &o.StockCommitted,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) Create(ctx context.Context, o *entity.Order) error {
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, r.s.rebind(
			"INSERT INTO orders ("+orderColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			o.ID, o.Domain, o.UserEmail, o.Stage, o.TotalPrice, o.VoucherID, o.VoucherDiscount,
			o.PriceAfterVoucher, o.Phone, o.Address, o.PaymentMethod, o.NoteCancel, o.StockCommitted,
			o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", r.s.translate(err))
		}

		for i, item := range o.Items {
			_, err = tx.ExecContext(ctx, r.s.rebind(
				"INSERT INTO order_items (order_id, position, product_id, name, description, image, unit_price, quantity) "+
					"VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
				o.ID, i, item.ProductID, item.Name, item.Description, item.Image, item.UnitPrice, item.Quantity,
			)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", r.s.translate(err))
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id, domain string) (*entity.Order, error) {
	row := r.s.db.QueryRowContext(ctx, r.s.rebind(
		"SELECT "+orderColumns+" FROM orders WHERE id = ? AND domain = ?"),
		id, domain,
	)
	o, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, r.s.translate(err))
	}
	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepository) items(ctx context.Context, orderID string) ([]entity.OrderItem, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(
		"SELECT product_id, name, description, image, unit_price, quantity FROM order_items WHERE order_id = ? ORDER BY position"),
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []entity.OrderItem
	for rows.Next() {
		var item entity.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Description, &item.Image, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *orderRepository) UpdateStage(ctx context.Context, id, domain string, from, to entity.Stage, note string) (*entity.Order, error) {
	query := "UPDATE orders SET stage = ?, updated_at = ?"
	args := []any{to, time.Now().UTC()}
	if note != "" {
		query += ", note_cancel = ?"
		args = append(args, note)
	}
	query += " WHERE id = ? AND domain = ? AND stage = ?"
	args = append(args, id, domain, from)

	res, err := r.s.db.ExecContext(ctx, r.s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update order stage: %w", r.s.translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("order %s in stage %s: %w", id, from, entity.ErrNotFound)
	}
	return r.Get(ctx, id, domain)
}

func (r *orderRepository) MarkStockCommitted(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, r.s.rebind(
		"UPDATE orders SET stock_committed = ?, updated_at = ? WHERE id = ? AND stage <> ?"),
		true, time.Now().UTC(), id, entity.StageCancelled,
	)
	if err != nil {
		return fmt.Errorf("failed to mark order %s committed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var one int
	err = r.s.db.QueryRowContext(ctx, r.s.rebind("SELECT 1 FROM orders WHERE id = ?"), id).Scan(&one)
	if err != nil {
		return fmt.Errorf("order %s: %w", id, r.s.translate(err))
	}
	return fmt.Errorf("order %s: %w", id, entity.ErrAlreadyCancelled)
}

func (r *orderRepository) List(ctx context.Context, filter entity.OrderFilter) ([]entity.Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Domain != "" {
		conds = append(conds, "domain = ?")
		args = append(args, filter.Domain)
	}
	if filter.UserEmail != "" {
		conds = append(conds, "user_email = ?")
		args = append(args, filter.UserEmail)
	}
	if filter.Stage != "" {
		conds = append(conds, "stage = ?")
		args = append(args, filter.Stage)
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	var orders []entity.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}

	// Fetch items for each order
	for i := range orders {
		if orders[i].Items, err = r.items(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) CountCompletedByUsers(ctx context.Context, domain string, emails []string) ([]entity.UserOrderCount, error) {
	if len(emails) == 0 {
		return []entity.UserOrderCount{}, nil
	}
	args := []any{domain, entity.StageCompleted}
	for _, e := range emails {
		args = append(args, e)
	}
	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(
		"SELECT user_email, COUNT(*) FROM orders WHERE domain = ? AND stage = ? AND user_email IN ("+
			placeholders(len(emails))+") GROUP BY user_email ORDER BY user_email"),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders by user: %w", err)
	}
	defer rows.Close()

	counts := []entity.UserOrderCount{}
	for rows.Next() {
		var c entity.UserOrderCount
		if err := rows.Scan(&c.Email, &c.TotalOrder); err != nil {
			return nil, fmt.Errorf("failed to scan order count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
