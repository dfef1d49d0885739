package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jjenkins/billtracker/internal/model"
)

const billColumns = `chamber, billtype, number, year, title, sponsor, sponsor_link,
		       contents_link, amend_link, fir_link, lesc_link, status_text, status_html,
		       last_action_date, update_date, mod_date`

// BillStore handles database operations for bills
type BillStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewBillStore creates a new BillStore
func NewBillStore(db *sql.DB) *BillStore {
	return &BillStore{db: db, now: time.Now}
}

// WithClock replaces the clock used for mod_date
func (s *BillStore) WithClock(now func() time.Time) *BillStore {
	s.now = now
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner, b *model.Bill) error {
	return row.Scan(
		&b.ID.Chamber,
		&b.ID.BillType,
		&b.ID.Number,
		&b.ID.Year,
		&b.Title,
		&b.Sponsor,
		&b.SponsorLink,
		&b.ContentsLink,
		&b.AmendLink,
		&b.FIRLink,
		&b.LESCLink,
		&b.StatusText,
		&b.StatusHTML,
		&b.LastActionDate,
		&b.UpdateDate,
		&b.ModDate,
	)
}

func utcNullTime(t sql.NullTime) sql.NullTime {
	if !t.Valid {
		return t
	}
	return sql.NullTime{Time: t.Time.UTC(), Valid: true}
}

// Upsert inserts a new bill or merges b into the stored one and returns the stored record.
//
// Absent fields in b leave stored values alone. update_date only moves forward and
// mod_date is set to now (never backwards). The merge is one conditional write, so
// concurrent upserts of the same bill cannot lose each other's advances.
func (s *BillStore) Upsert(ctx context.Context, b *model.Bill) (*model.Bill, error) {
	query := `
		INSERT INTO bills (chamber, billtype, number, year, billno, title, sponsor, sponsor_link,
		                   contents_link, amend_link, fir_link, lesc_link, status_text, status_html,
		                   last_action_date, update_date, mod_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (chamber, billtype, number, year) DO UPDATE SET
			title = COALESCE(EXCLUDED.title, bills.title),
			sponsor = COALESCE(EXCLUDED.sponsor, bills.sponsor),
			sponsor_link = COALESCE(EXCLUDED.sponsor_link, bills.sponsor_link),
			contents_link = COALESCE(EXCLUDED.contents_link, bills.contents_link),
			amend_link = COALESCE(EXCLUDED.amend_link, bills.amend_link),
			fir_link = COALESCE(EXCLUDED.fir_link, bills.fir_link),
			lesc_link = COALESCE(EXCLUDED.lesc_link, bills.lesc_link),
			status_text = COALESCE(EXCLUDED.status_text, bills.status_text),
			status_html = COALESCE(EXCLUDED.status_html, bills.status_html),
			last_action_date = COALESCE(EXCLUDED.last_action_date, bills.last_action_date),
			update_date = CASE
				WHEN EXCLUDED.update_date IS NOT NULL
				     AND (bills.update_date IS NULL OR EXCLUDED.update_date > bills.update_date)
				THEN EXCLUDED.update_date
				ELSE bills.update_date
			END,
			mod_date = CASE
				WHEN EXCLUDED.mod_date > bills.mod_date THEN EXCLUDED.mod_date
				ELSE bills.mod_date
			END
	`

	_, err := s.db.ExecContext(ctx, query,
		b.ID.Chamber,
		b.ID.BillType,
		b.ID.Number,
		b.ID.Year,
		b.Designation(),
		b.Title,
		b.Sponsor,
		b.SponsorLink,
		b.ContentsLink,
		b.AmendLink,
		b.FIRLink,
		b.LESCLink,
		b.StatusText,
		b.StatusHTML,
		utcNullTime(b.LastActionDate),
		utcNullTime(b.UpdateDate),
		s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert bill %s: %w", b.ID, err)
	}

	return s.Get(ctx, b.ID)
}

// Get retrieves a bill by identity, or nil if it has never been stored
func (s *BillStore) Get(ctx context.Context, id model.BillID) (*model.Bill, error) {
	query := `
		SELECT ` + billColumns + `
		FROM bills
		WHERE chamber = $1 AND billtype = $2 AND number = $3 AND year = $4
	`

	var b model.Bill
	err := scanBill(s.db.QueryRowContext(ctx, query, id.Chamber, id.BillType, id.Number, id.Year), &b)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill %s: %w", id, err)
	}

	return &b, nil
}

// ListByUpdateDate returns the bills of a session, most recently updated first.
// Bills without an update_date come last; ties are broken by identity.
func (s *BillStore) ListByUpdateDate(ctx context.Context, year string) ([]model.Bill, error) {
	query := `
		SELECT ` + billColumns + `
		FROM bills
		WHERE year = $1
		ORDER BY (update_date IS NULL), update_date DESC, chamber, billtype, number
	`

	rows, err := s.db.QueryContext(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills for %s: %w", year, err)
	}
	defer rows.Close()

	var bills []model.Bill
	for rows.Next() {
		var b model.Bill
		if err := scanBill(rows, &b); err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, b)
	}

	return bills, rows.Err()
}

// CountBills returns the number of stored bills
func (s *BillStore) CountBills(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bills`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bills: %w", err)
	}
	return count, nil
}
