package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
)

const voucherColumns = "id, domain, voucher_name, voucher_code, discount_percent, max_discount, min_app_value, start_at, expire_at, deleted_at, created_at"

type voucherRepository struct {
	s *Store
}

func scanVoucher(row interface{ Scan(...any) error }) (*entity.Voucher, error) {
	var (
		v       entity.Voucher
		deleted sql.NullTime
	)
	err := row.Scan(&v.ID, &v.Domain, &v.Name, &v.Code, &v.DiscountPercent, &v.MaxDiscount,
		&v.MinAppValue, &v.StartAt, &v.ExpireAt, &deleted, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if deleted.Valid {
		t := deleted.Time
		v.DeletedAt = &t
	}
	return &v, nil
}

func (r *voucherRepository) Find(ctx context.Context, id, domain string) (*entity.Voucher, error) {
	row := r.s.db.QueryRowContext(ctx, r.s.rebind(
		"SELECT "+voucherColumns+" FROM vouchers WHERE id = ? AND domain = ? AND deleted_at IS NULL"),
		id, domain,
	)
	v, err := scanVoucher(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher %s: %w", id, r.s.translate(err))
	}
	return v, nil
}

func (r *voucherRepository) FindByCode(ctx context.Context, code, domain string) (*entity.Voucher, error) {
	row := r.s.db.QueryRowContext(ctx, r.s.rebind(
		"SELECT "+voucherColumns+" FROM vouchers WHERE voucher_code = ? AND domain = ? AND deleted_at IS NULL"),
		code, domain,
	)
	v, err := scanVoucher(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher by code %s: %w", code, r.s.translate(err))
	}
	return v, nil
}

func (r *voucherRepository) ListByDomain(ctx context.Context, domain string) ([]entity.Voucher, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(
		"SELECT "+voucherColumns+" FROM vouchers WHERE domain = ? AND deleted_at IS NULL ORDER BY expire_at"),
		domain,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []entity.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		vouchers = append(vouchers, *v)
	}
	return vouchers, rows.Err()
}

func (r *voucherRepository) Create(ctx context.Context, v *entity.Voucher) error {
	var deleted any
	if v.DeletedAt != nil {
		deleted = v.DeletedAt.UTC()
	}
	_, err := r.s.db.ExecContext(ctx, r.s.rebind(
		"INSERT INTO vouchers ("+voucherColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		v.ID, v.Domain, v.Name, v.Code, v.DiscountPercent, v.MaxDiscount, v.MinAppValue,
		v.StartAt.UTC(), v.ExpireAt.UTC(), deleted, v.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert voucher %s: %w", v.Code, r.s.translate(err))
	}
	return nil
}
