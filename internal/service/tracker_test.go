package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jjenkins/billtracker/internal/common"
	"github.com/jjenkins/billtracker/internal/model"
)

func registerAlice(t *testing.T, env *testEnv) {
	t.Helper()
	_, err := env.tracker.Register(context.Background(), "alice", "alice@example.com", "hunter2")
	require.NoError(t, err)
}

func activities(rows []model.TrackedBill) map[string]model.Activity {
	out := make(map[string]model.Activity)
	for _, r := range rows {
		out[r.Bill.Designation()] = r.Activity
	}
	return out
}

// bumpUpdateDate stores a newer update_date for a bill, as a later refresh would
func bumpUpdateDate(t *testing.T, env *testEnv, designation string, at time.Time) {
	t.Helper()
	_, err := env.bills.Upsert(context.Background(), &model.Bill{
		ID:         mustID(t, designation, "19"),
		UpdateDate: sql.NullTime{Time: at, Valid: true},
	})
	require.NoError(t, err)
}

func TestTracker_Register(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAlice(t, env)

	tests := []struct {
		name     string
		username string
		email    string
		password string
		check    func(error) bool
	}{
		{"taken username", "alice", "", "pw", func(err error) bool { return errors.Is(err, common.ErrConflict) }},
		{"taken email", "alice2", "alice@example.com", "pw", func(err error) bool { return errors.Is(err, common.ErrConflict) }},
		{"link in username", "http://spam", "", "pw", isValidationError},
		{"long username", strings.Repeat("a", 61), "", "pw", isValidationError},
		{"no password", "bob", "", "", isValidationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.tracker.Register(ctx, tt.username, tt.email, tt.password)
			require.True(t, tt.check(err), "got %v", err)
		})
	}

	user, err := env.tracker.Authenticate(ctx, "alice", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)

	_, err = env.tracker.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, common.ErrUnauthorized)
	_, err = env.tracker.Authenticate(ctx, "nobody", "hunter2")
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func isValidationError(err error) bool {
	var v *common.ValidationError
	return errors.As(err, &v)
}

func TestTracker_TrackPreservesInsertionOrder(t *testing.T) {
	env := newTestEnv(t)
	env.addFixtures(t)
	registerAlice(t, env)
	ctx := context.Background()

	_, err := env.tracker.Track(ctx, "alice", "HB73", "19")
	require.NoError(t, err)
	_, err = env.tracker.Track(ctx, "alice", "hb100", "19")
	require.NoError(t, err)
	// HB100 has no update_date and HB73 does; order is still tracking order
	_, err = env.tracker.Track(ctx, "alice", "HB73", "19")
	require.NoError(t, err)

	tracked, err := env.tracker.Tracked(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, tracked, 2)
	require.Equal(t, "HB73", tracked[0].Bill.Designation())
	require.Equal(t, "HB100", tracked[1].Bill.Designation())
}

func TestTracker_TrackList(t *testing.T) {
	env := newTestEnv(t)
	env.addFixtures(t)
	registerAlice(t, env)

	ids, err := env.tracker.Track(context.Background(), "alice", "SB21, HB73", "19")
	require.NoError(t, err)
	require.Len(t, ids, 2)

	tracked, err := env.tracker.Tracked(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "SB21", tracked[0].Bill.Designation())
	require.Equal(t, "HB73", tracked[1].Bill.Designation())
}

func TestTracker_TrackRejectsInvalidBeforeFetching(t *testing.T) {
	env := newTestEnv(t)
	env.addFixtures(t)
	registerAlice(t, env)

	_, err := env.tracker.Track(context.Background(), "alice", "XB12", "19")
	require.True(t, isValidationError(err), "got %v", err)

	_, err = env.tracker.Track(context.Background(), "alice", "HB73, XB12", "19")
	require.True(t, isValidationError(err), "got %v", err)

	require.Empty(t, env.fetcher.Requests())
}

func TestTracker_TrackFailureCreatesNoRelation(t *testing.T) {
	env := newTestEnv(t)
	env.addFixtures(t)
	registerAlice(t, env)
	ctx := context.Background()

	_, err := env.tracker.Track(ctx, "alice", "HB73, HB9", "19")
	require.True(t, common.IsFetchCause(err, common.FetchNotFound), "got %v", err)
	require.Equal(t, 404, common.HTTPStatusFromError(err))

	tracked, err := env.tracker.Tracked(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, tracked)
}

func TestTracker_TrackWithoutRefresher(t *testing.T) {
	env := newTestEnv(t)
	registerAlice(t, env)
	tracker := NewTracker(env.bills, env.users, nil)

	_, err := tracker.Track(context.Background(), "alice", "HB73", "19")
	require.ErrorIs(t, err, common.ErrUnknownBill)
	require.Empty(t, env.fetcher.Requests())
}

func TestTracker_TrackUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	env.addFixtures(t)

	_, err := env.tracker.Track(context.Background(), "nobody", "HB73", "19")
	require.ErrorIs(t, err, common.ErrUnknownUser)
}

func TestTracker_DashboardActivity(t *testing.T) {
	env := newTestEnv(t)
	env.addFixtures(t)
	registerAlice(t, env)
	ctx := context.Background()

	_, err := env.tracker.Track(ctx, "alice", "HB73, HB100", "19")
	require.NoError(t, err)

	rows, err := env.tracker.Dashboard(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, map[string]model.Activity{
		"HB73":  model.ActivityFirstCheck,
		"HB100": model.ActivityFirstCheck,
	}, activities(rows))

	rows, err = env.tracker.Dashboard(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, map[string]model.Activity{
		"HB73":  model.ActivityUnchanged,
		"HB100": model.ActivityUnchanged,
	}, activities(rows))

	bumpUpdateDate(t, env, "HB73", time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC))
	bumpUpdateDate(t, env, "HB100", time.Date(2019, 3, 2, 0, 0, 0, 0, time.UTC))

	activity, err := env.tracker.Activity(ctx, "alice", mustID(t, "HB73", "19"))
	require.NoError(t, err)
	require.Equal(t, model.ActivityNewActivity, activity, "peeking does not clear the flag")

	rows, err = env.tracker.Dashboard(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, map[string]model.Activity{
		"HB73":  model.ActivityNewActivity,
		"HB100": model.ActivityNewActivity,
	}, activities(rows))

	rows, err = env.tracker.Dashboard(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, map[string]model.Activity{
		"HB73":  model.ActivityUnchanged,
		"HB100": model.ActivityUnchanged,
	}, activities(rows))

	user, err := env.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.True(t, user.LastCheck.Valid)
}

func TestTracker_DashboardNotTracking(t *testing.T) {
	env := newTestEnv(t)
	registerAlice(t, env)

	_, err := env.tracker.Dashboard(context.Background(), "alice")
	require.ErrorIs(t, err, common.ErrNotTracking)

	_, err = env.tracker.Dashboard(context.Background(), "nobody")
	require.ErrorIs(t, err, common.ErrUnknownUser)
}

func TestTracker_ConcurrentDashboardsReportOnce(t *testing.T) {
	env := newTestEnv(t)
	env.addFixtures(t)
	registerAlice(t, env)
	ctx := context.Background()

	_, err := env.tracker.Track(ctx, "alice", "HB73", "19")
	require.NoError(t, err)
	_, err = env.tracker.Dashboard(ctx, "alice")
	require.NoError(t, err)

	bumpUpdateDate(t, env, "HB73", time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC))

	var mu sync.Mutex
	counts := make(map[model.Activity]int)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := env.tracker.Dashboard(ctx, "alice")
			require.NoError(t, err)
			mu.Lock()
			counts[rows[0].Activity]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, counts[model.ActivityNewActivity])
	require.Equal(t, 9, counts[model.ActivityUnchanged])
}

func TestTracker_CheckAndUntrack(t *testing.T) {
	env := newTestEnv(t)
	env.addFixtures(t)
	registerAlice(t, env)
	ctx := context.Background()
	id := mustID(t, "SB21", "19")

	_, err := env.tracker.Track(ctx, "alice", "SB21", "19")
	require.NoError(t, err)

	tb, err := env.tracker.Check(ctx, "alice", id)
	require.NoError(t, err)
	require.Equal(t, model.ActivityFirstCheck, tb.Activity)

	require.NoError(t, env.tracker.Untrack(ctx, "alice", id))
	require.NoError(t, env.tracker.Untrack(ctx, "alice", id))

	_, err = env.tracker.Check(ctx, "alice", id)
	require.ErrorIs(t, err, common.ErrNotTracked)
	_, err = env.tracker.Activity(ctx, "alice", id)
	require.ErrorIs(t, err, common.ErrNotTracked)
}
