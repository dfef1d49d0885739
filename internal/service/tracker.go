package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jjenkins/billtracker/internal/auth"
	"github.com/jjenkins/billtracker/internal/common"
	"github.com/jjenkins/billtracker/internal/model"
	"github.com/jjenkins/billtracker/internal/store"
)

// maxMarkerAttempts bounds the re-read loop when concurrent views race on one marker
const maxMarkerAttempts = 32

// Tracker manages users, the bills they track and what each has seen
type Tracker struct {
	bills     *store.BillStore
	users     *store.UserStore
	refresher *Refresher
	now       func() time.Time
	logger    *slog.Logger
}

// NewTracker creates a new Tracker. With a nil refresher, tracking a bill that was
// never ingested fails with common.ErrUnknownBill instead of fetching it.
func NewTracker(bills *store.BillStore, users *store.UserStore, refresher *Refresher) *Tracker {
	return &Tracker{
		bills:     bills,
		users:     users,
		refresher: refresher,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// WithClock replaces the clock used for check markers
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Register creates an account with a hashed password
func (t *Tracker) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if err := model.ValidateUsername(username); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, &common.ValidationError{Field: "password", Msg: "a password is required"}
	}

	email = strings.TrimSpace(email)
	if email != "" {
		inUse, err := t.users.EmailInUse(ctx, email)
		if err != nil {
			return nil, err
		}
		if inUse {
			return nil, fmt.Errorf("email %s is already in use: %w", email, common.ErrConflict)
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        model.NullString(email),
		PasswordHash: hash,
		CreatedAt:    t.now().UTC(),
	}
	if err := t.users.Create(ctx, user); err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "registered user", "username", username)
	return user, nil
}

// Authenticate checks a username and password
func (t *Tracker) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := t.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("no user %s: %w", username, common.ErrUnauthorized)
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, fmt.Errorf("bad password for %s: %w", username, common.ErrUnauthorized)
	}
	return user, nil
}

// Track adds one or more comma separated designations to a user's tracked bills.
//
// Every designation is validated before anything is fetched. Bills never seen before
// are refreshed first; if any of them fails nothing is tracked. Tracking a bill that
// is already tracked is a no-op.
func (t *Tracker) Track(ctx context.Context, username, designations, year string) ([]model.BillID, error) {
	ids, err := model.ParseDesignationList(designations, year)
	if err != nil {
		return nil, err
	}
	if err := t.requireUser(ctx, username); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := t.ensureIngested(ctx, id); err != nil {
			return nil, err
		}
	}

	for _, id := range ids {
		added, err := t.users.Track(ctx, username, id)
		if err != nil {
			return nil, err
		}
		if added {
			t.logger.InfoContext(ctx, "tracking bill", "username", username, "bill", id.Designation(), "year", id.Year)
		}
	}

	return ids, nil
}

func (t *Tracker) ensureIngested(ctx context.Context, id model.BillID) error {
	bill, err := t.bills.Get(ctx, id)
	if err != nil {
		return err
	}
	if bill != nil {
		return nil
	}
	if t.refresher == nil {
		return fmt.Errorf("%s: %w", id, common.ErrUnknownBill)
	}
	if _, err := t.refresher.Refresh(ctx, id); err != nil {
		return fmt.Errorf("failed to fetch %s: %w", id, err)
	}
	return nil
}

// Untrack removes a bill from a user's tracked bills. Untracking a bill that is not
// tracked is a no-op.
func (t *Tracker) Untrack(ctx context.Context, username string, id model.BillID) error {
	removed, err := t.users.Untrack(ctx, username, id)
	if err != nil {
		return err
	}
	if removed {
		t.logger.InfoContext(ctx, "untracked bill", "username", username, "bill", id.Designation(), "year", id.Year)
	}
	return nil
}

// Tracked lists a user's bills in tracking order without touching any markers
func (t *Tracker) Tracked(ctx context.Context, username string) ([]model.TrackedBill, error) {
	tracked, err := t.users.ListTracked(ctx, username)
	if err != nil {
		return nil, err
	}
	for i := range tracked {
		tracked[i].Activity = model.ActivityFor(tracked[i].Marker, tracked[i].Bill.UpdateDate)
	}
	return tracked, nil
}

// Activity reports what changed in a bill since the user last checked it, without
// advancing the marker
func (t *Tracker) Activity(ctx context.Context, username string, id model.BillID) (model.Activity, error) {
	tb, err := t.users.GetTracked(ctx, username, id)
	if err != nil {
		return "", err
	}
	if tb == nil {
		return "", fmt.Errorf("%s for %s: %w", id, username, common.ErrNotTracked)
	}
	return model.ActivityFor(tb.Marker, tb.Bill.UpdateDate), nil
}

// LastCheck returns when the user last viewed their dashboard; invalid before the first view
func (t *Tracker) LastCheck(ctx context.Context, username string) (sql.NullTime, error) {
	user, err := t.users.GetByUsername(ctx, username)
	if err != nil {
		return sql.NullTime{}, err
	}
	if user == nil {
		return sql.NullTime{}, fmt.Errorf("%s: %w", username, common.ErrUnknownUser)
	}
	return user.LastCheck, nil
}

// Dashboard returns the user's tracked bills with their activity and marks each as
// checked. Activity is computed before the marker moves, so a change is reported by
// exactly one view even when several views race.
func (t *Tracker) Dashboard(ctx context.Context, username string) ([]model.TrackedBill, error) {
	if err := t.requireUser(ctx, username); err != nil {
		return nil, err
	}

	tracked, err := t.users.ListTracked(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(tracked) == 0 {
		return nil, fmt.Errorf("%s: %w", username, common.ErrNotTracking)
	}

	now := t.now().UTC()
	rows := make([]model.TrackedBill, 0, len(tracked))
	for _, tb := range tracked {
		checked, err := t.check(ctx, username, tb, now)
		if errors.Is(err, common.ErrNotTracked) {
			// untracked by a concurrent request
			continue
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, checked)
	}

	if err := t.users.TouchLastCheck(ctx, username, now); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", username, common.ErrNotTracking)
	}

	return rows, nil
}

// Check is Dashboard for a single bill
func (t *Tracker) Check(ctx context.Context, username string, id model.BillID) (*model.TrackedBill, error) {
	tb, err := t.users.GetTracked(ctx, username, id)
	if err != nil {
		return nil, err
	}
	if tb == nil {
		return nil, fmt.Errorf("%s for %s: %w", id, username, common.ErrNotTracked)
	}
	checked, err := t.check(ctx, username, *tb, t.now().UTC())
	if err != nil {
		return nil, err
	}
	return &checked, nil
}

// check reads the activity for tb and then advances its marker. If another view
// advanced the marker first, the row is re-read and the activity recomputed.
func (t *Tracker) check(ctx context.Context, username string, tb model.TrackedBill, now time.Time) (model.TrackedBill, error) {
	id := tb.Bill.ID
	for attempt := 0; attempt < maxMarkerAttempts; attempt++ {
		activity := model.ActivityFor(tb.Marker, tb.Bill.UpdateDate)

		ok, err := t.users.AdvanceMarker(ctx, username, id, tb.Marker.Generation, tb.Bill.UpdateDate, now)
		if err != nil {
			return tb, err
		}
		if ok {
			tb.Activity = activity
			return tb, nil
		}

		fresh, err := t.users.GetTracked(ctx, username, id)
		if err != nil {
			return tb, err
		}
		if fresh == nil {
			return tb, fmt.Errorf("%s for %s: %w", id, username, common.ErrNotTracked)
		}
		tb = *fresh
	}
	return tb, fmt.Errorf("failed to advance marker for %s on %s after %d attempts: %w",
		username, id, maxMarkerAttempts, common.ErrConflict)
}

func (t *Tracker) requireUser(ctx context.Context, username string) error {
	user, err := t.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%s: %w", username, common.ErrUnknownUser)
	}
	return nil
}
