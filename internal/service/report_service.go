package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository"
)

// BucketType selects how a report groups orders.
type BucketType string

const (
	BucketWeek  BucketType = "WEEK"
	BucketMonth BucketType = "MONTH"
	BucketYear  BucketType = "YEAR"
)

// ParseBucketType accepts WEEK, MONTH or YEAR in any case.
func ParseBucketType(s string) (BucketType, error) {
	switch bt := BucketType(strings.ToUpper(s)); bt {
	case BucketWeek, BucketMonth, BucketYear:
		return bt, nil
	}
	return "", fmt.Errorf("%w: unknown report type %q", entity.ErrInvalidArgument, s)
}

// ReportService aggregates completed orders into time buckets.
type ReportService struct {
	orders repository.OrderRepository
	now    func() time.Time
	loc    *time.Location
	tracer trace.Tracer
}

// NewReportService creates a report service. Buckets are computed in loc;
// nil means UTC. A nil clock means time.Now.
func NewReportService(orders repository.OrderRepository, now func() time.Time, loc *time.Location) *ReportService {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{orders: orders, now: now, loc: loc, tracer: otel.Tracer(tracerName)}
}

type bucket struct {
	label string
	count int
	value decimal.Decimal
}

// GetOrderValueReport groups the domain's completed orders of the current
// week, month or year. Only non-empty buckets are returned, in calendar order.
func (s *ReportService) GetOrderValueReport(ctx context.Context, p entity.Principal, rawType string) (*entity.OrderValueReport, error) {
	ctx, span := s.tracer.Start(ctx, "ReportService.GetOrderValueReport", trace.WithAttributes(attribute.String("type", rawType)))
	defer span.End()

	bt, err := ParseBucketType(rawType)
	if err != nil {
		return nil, err
	}
	if !p.IsTenant() {
		return nil, entity.ErrPermissionDenied
	}

	orders, err := s.orders.List(ctx, entity.OrderFilter{Domain: p.Domain, Stage: entity.StageCompleted})
	if err != nil {
		return nil, fmt.Errorf("failed to load completed orders: %w", err)
	}

	now := s.now().In(s.loc)
	buckets := map[int]*bucket{}
	report := &entity.OrderValueReport{Buckets: []entity.ReportBucket{}, TotalValue: decimal.Zero}

	for _, o := range orders {
		key, label, ok := classify(bt, o.CreatedAt.In(s.loc), now)
		if !ok {
			continue
		}
		b := buckets[key]
		if b == nil {
			b = &bucket{label: label, value: decimal.Zero}
			buckets[key] = b
		}
		b.count++
		b.value = b.value.Add(o.TotalPrice)
		report.TotalOrders++
		report.TotalValue = report.TotalValue.Add(o.TotalPrice)
	}

	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		b := buckets[k]
		report.Buckets = append(report.Buckets, entity.ReportBucket{Label: b.label, OrderCount: b.count, TotalValue: b.value})
	}
	return report, nil
}

// classify returns the bucket key and label of t, and whether t falls in the
// period of now.
func classify(bt BucketType, t, now time.Time) (int, string, bool) {
	switch bt {
	case BucketWeek:
		start := startOfWeek(now)
		if t.Before(start) || !t.Before(start.AddDate(0, 0, 7)) {
			return 0, "", false
		}
		wd := isoWeekday(t)
		return wd, t.Weekday().String(), true
	case BucketMonth:
		if t.Year() != now.Year() || t.Month() != now.Month() {
			return 0, "", false
		}
		n := WeekOfMonth(t)
		return n, fmt.Sprintf("WEEK_%d", n), true
	case BucketYear:
		if t.Year() != now.Year() {
			return 0, "", false
		}
		return int(t.Month()), t.Month().String(), true
	}
	return 0, "", false
}

// isoWeekday maps Monday..Sunday to 1..7.
func isoWeekday(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int(t.Weekday())
}

func startOfWeek(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d-(isoWeekday(t)-1), 0, 0, 0, 0, t.Location())
}

// WeekOfMonth numbers Monday-starting weeks within t's month. The partial
// week holding the 1st is week 1.
func WeekOfMonth(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return (t.Day()+isoWeekday(first)-2)/7 + 1
}
