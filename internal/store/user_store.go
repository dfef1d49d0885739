package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jjenkins/billtracker/internal/common"
	"github.com/jjenkins/billtracker/internal/model"
)

// UserStore handles users and the bills they track
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new user; duplicate usernames or emails yield common.ErrConflict
func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query, u.Username, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("user %s or email already exists: %w", u.Username, common.ErrConflict)
		}
		return fmt.Errorf("failed to create user %s: %w", u.Username, err)
	}

	return nil
}

// GetByUsername retrieves a user, or nil if there is none
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	query := `
		SELECT username, email, password_hash, created_at, last_check
		FROM users
		WHERE username = $1
	`

	var u model.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.LastCheck,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", username, err)
	}

	return &u, nil
}

// EmailInUse reports whether another account already uses the email address
func (s *UserStore) EmailInUse(ctx context.Context, email string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = $1`, email).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up email: %w", err)
	}
	return count > 0, nil
}

// TouchLastCheck records when the user last viewed their dashboard
func (s *UserStore) TouchLastCheck(ctx context.Context, username string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_check = $1 WHERE username = $2`, at.UTC(), username)
	if err != nil {
		return fmt.Errorf("failed to update last check for %s: %w", username, err)
	}
	return nil
}

// Track links a user to a bill at the end of their tracking order.
// Returns false if the bill was already tracked.
func (s *UserStore) Track(ctx context.Context, username string, id model.BillID) (bool, error) {
	query := `
		INSERT INTO user_bills (username, chamber, billtype, number, year, position)
		SELECT CAST($1 AS TEXT), CAST($2 AS TEXT), CAST($3 AS TEXT), CAST($4 AS INTEGER), CAST($5 AS TEXT),
		       COALESCE(MAX(position), 0) + 1
		FROM user_bills
		WHERE username = $1
		ON CONFLICT (username, chamber, billtype, number, year) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query, username, id.Chamber, id.BillType, id.Number, id.Year)
	if err != nil {
		return false, fmt.Errorf("failed to link %s to bill %s: %w", username, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to link %s to bill %s: %w", username, id, err)
	}

	return n > 0, nil
}

// Untrack removes the link between a user and a bill.
// Returns false if the bill was not tracked.
func (s *UserStore) Untrack(ctx context.Context, username string, id model.BillID) (bool, error) {
	query := `
		DELETE FROM user_bills
		WHERE username = $1 AND chamber = $2 AND billtype = $3 AND number = $4 AND year = $5
	`

	res, err := s.db.ExecContext(ctx, query, username, id.Chamber, id.BillType, id.Number, id.Year)
	if err != nil {
		return false, fmt.Errorf("failed to unlink %s from bill %s: %w", username, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to unlink %s from bill %s: %w", username, id, err)
	}

	return n > 0, nil
}

const trackedColumns = `b.chamber, b.billtype, b.number, b.year, b.title, b.sponsor, b.sponsor_link,
		       b.contents_link, b.amend_link, b.fir_link, b.lesc_link, b.status_text, b.status_html,
		       b.last_action_date, b.update_date, b.mod_date,
		       ub.position, ub.checked_at, ub.seen_update_date, ub.generation`

func scanTracked(row rowScanner, t *model.TrackedBill) error {
	b := &t.Bill
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
		&t.Position,
		&t.Marker.CheckedAt,
		&t.Marker.SeenUpdateDate,
		&t.Marker.Generation,
	)
}

// ListTracked returns a user's tracked bills in the order they were added
func (s *UserStore) ListTracked(ctx context.Context, username string) ([]model.TrackedBill, error) {
	query := `
		SELECT ` + trackedColumns + `
		FROM user_bills ub
		JOIN bills b ON b.chamber = ub.chamber AND b.billtype = ub.billtype
		            AND b.number = ub.number AND b.year = ub.year
		WHERE ub.username = $1
		ORDER BY ub.position, b.chamber, b.billtype, b.number
	`

	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills tracked by %s: %w", username, err)
	}
	defer rows.Close()

	var tracked []model.TrackedBill
	for rows.Next() {
		var t model.TrackedBill
		if err := scanTracked(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan tracked bill: %w", err)
		}
		tracked = append(tracked, t)
	}

	return tracked, rows.Err()
}

// GetTracked returns one tracked bill with the user's marker, or nil if not tracked
func (s *UserStore) GetTracked(ctx context.Context, username string, id model.BillID) (*model.TrackedBill, error) {
	query := `
		SELECT ` + trackedColumns + `
		FROM user_bills ub
		JOIN bills b ON b.chamber = ub.chamber AND b.billtype = ub.billtype
		            AND b.number = ub.number AND b.year = ub.year
		WHERE ub.username = $1 AND ub.chamber = $2 AND ub.billtype = $3
		  AND ub.number = $4 AND ub.year = $5
	`

	var t model.TrackedBill
	err := scanTracked(s.db.QueryRowContext(ctx, query, username, id.Chamber, id.BillType, id.Number, id.Year), &t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill %s tracked by %s: %w", id, username, err)
	}

	return &t, nil
}

// AdvanceMarker moves the user's last-checked marker for a bill, but only if nobody
// else advanced it since generation was read. Returns false when the race was lost.
func (s *UserStore) AdvanceMarker(ctx context.Context, username string, id model.BillID, generation int64, seen sql.NullTime, at time.Time) (bool, error) {
	query := `
		UPDATE user_bills
		SET checked_at = $1, seen_update_date = $2, generation = generation + 1
		WHERE username = $3 AND chamber = $4 AND billtype = $5 AND number = $6 AND year = $7
		  AND generation = $8
	`

	res, err := s.db.ExecContext(ctx, query,
		at.UTC(),
		utcNullTime(seen),
		username,
		id.Chamber,
		id.BillType,
		id.Number,
		id.Year,
		generation,
	)
	if err != nil {
		return false, fmt.Errorf("failed to advance marker for %s on %s: %w", username, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to advance marker for %s on %s: %w", username, id, err)
	}

	return n == 1, nil
}
