package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// MetricsService calculates and stores system-wide metrics
type MetricsService struct {
	db  *sql.DB
	now func() time.Time
}

// NewMetricsService creates a new MetricsService
func NewMetricsService(db *sql.DB) *MetricsService {
	return &MetricsService{db: db, now: time.Now}
}

// SystemMetrics represents calculated system-wide metrics
type SystemMetrics struct {
	TotalBills       int
	BillsByYear      map[string]int
	TotalUsers       int
	TotalTracking    int
	MostTracked      string
	MostTrackedUsers int
}

// CalculateAndStore calculates system metrics and stores them
func (m *MetricsService) CalculateAndStore(ctx context.Context) (*SystemMetrics, error) {
	metrics := &SystemMetrics{BillsByYear: make(map[string]int)}

	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bills`).Scan(&metrics.TotalBills)
	if err != nil {
		return nil, fmt.Errorf("failed to count bills: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `SELECT year, COUNT(*) FROM bills GROUP BY year ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("failed to count bills per year: %w", err)
	}
	for rows.Next() {
		var year string
		var count int
		if err := rows.Scan(&year, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan bill count: %w", err)
		}
		metrics.BillsByYear[year] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to count bills per year: %w", err)
	}

	err = m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&metrics.TotalUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	err = m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_bills`).Scan(&metrics.TotalTracking)
	if err != nil {
		return nil, fmt.Errorf("failed to count tracked bills: %w", err)
	}

	// Find the bill followed by the most users
	mostTrackedQuery := `
		SELECT b.billno, b.year, COUNT(*) AS followers
		FROM user_bills ub
		JOIN bills b ON b.chamber = ub.chamber AND b.billtype = ub.billtype
		            AND b.number = ub.number AND b.year = ub.year
		GROUP BY b.billno, b.year
		ORDER BY followers DESC, b.year DESC, b.billno
		LIMIT 1
	`
	var billno, year string
	err = m.db.QueryRowContext(ctx, mostTrackedQuery).Scan(&billno, &year, &metrics.MostTrackedUsers)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to find most tracked bill: %w", err)
	}
	if billno != "" {
		metrics.MostTracked = fmt.Sprintf("%s (20%s)", billno, year)
	}

	// Store metrics
	at := m.now().UTC()
	values := map[string]string{
		"total_bills":        strconv.Itoa(metrics.TotalBills),
		"total_users":        strconv.Itoa(metrics.TotalUsers),
		"total_tracking":     strconv.Itoa(metrics.TotalTracking),
		"most_tracked":       metrics.MostTracked,
		"most_tracked_users": strconv.Itoa(metrics.MostTrackedUsers),
	}
	for year, count := range metrics.BillsByYear {
		values["bills_20"+year] = strconv.Itoa(count)
	}
	for name, value := range values {
		if err := m.storeMetric(ctx, name, value, at); err != nil {
			return nil, err
		}
	}

	return metrics, nil
}

// storeMetric stores a single metric value
func (m *MetricsService) storeMetric(ctx context.Context, name, value string, at time.Time) error {
	query := `
		INSERT INTO metrics (metric_name, metric_value, calculated_at)
		VALUES ($1, $2, $3)
	`

	_, err := m.db.ExecContext(ctx, query, name, value, at)
	if err != nil {
		return fmt.Errorf("failed to store metric %s: %w", name, err)
	}

	return nil
}

// GetLatestMetrics retrieves the most recent value of every metric
func (m *MetricsService) GetLatestMetrics(ctx context.Context) (map[string]string, error) {
	query := `
		SELECT m.metric_name, m.metric_value
		FROM metrics m
		JOIN (
			SELECT metric_name, MAX(calculated_at) AS latest
			FROM metrics
			GROUP BY metric_name
		) l ON l.metric_name = m.metric_name AND l.latest = m.calculated_at
		ORDER BY m.metric_name
	`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}
	defer rows.Close()

	metrics := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics[name] = value
	}

	return metrics, rows.Err()
}
