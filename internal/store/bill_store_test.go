package store

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/billtracker/internal/model"
)

var t0 = time.Date(2019, 2, 1, 9, 0, 0, 0, time.UTC)

// tick returns a clock that advances one minute per call
func tick(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

func billID(t *testing.T, designation string) model.BillID {
	t.Helper()
	id, err := model.ParseDesignation(designation, "19")
	require.NoError(t, err)
	return id
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}

func sampleBill(t *testing.T) *model.Bill {
	return &model.Bill{
		ID:             billID(t, "HB73"),
		Title:          model.NullString("EXEMPT NM FROM DAYLIGHT SAVINGS TIME"),
		Sponsor:        model.NullString("Andrea Romero"),
		SponsorLink:    model.NullString("https://www.nmlegis.gov/Members/Legislator?SponCode=HRERO"),
		ContentsLink:   model.NullString("https://www.nmlegis.gov/Sessions/19%20Regular/bills/house/HB0073.pdf"),
		StatusText:     model.NullString("House Judiciary Committee"),
		StatusHTML:     model.NullString("<b>Legislative Day: 1</b>"),
		LastActionDate: nullTime(time.Date(2019, 2, 9, 0, 0, 0, 0, time.UTC)),
		UpdateDate:     nullTime(time.Date(2019, 2, 11, 10, 15, 0, 0, time.UTC)),
	}
}

// ignoreModDate compares everything except the ingest timestamp
var ignoreModDate = cmpopts.IgnoreFields(model.Bill{}, "ModDate")

func TestBillStore_UpsertInsertsAndGets(t *testing.T) {
	s := NewBillStore(newTestDB(t)).WithClock(tick(t0))
	ctx := context.Background()

	in := sampleBill(t)
	stored, err := s.Upsert(ctx, in)
	require.NoError(t, err)
	require.True(t, stored.ModDate.Equal(t0.Add(time.Minute)))
	if diff := cmp.Diff(in, stored, ignoreModDate); diff != "" {
		t.Errorf("Upsert() mismatch (-want +got):\n%s", diff)
	}

	got, err := s.Get(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, "HB73", got.Designation())

	missing, err := s.Get(ctx, billID(t, "SB1"))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestBillStore_UpsertIdempotent(t *testing.T) {
	s := NewBillStore(newTestDB(t)).WithClock(tick(t0))
	ctx := context.Background()

	first, err := s.Upsert(ctx, sampleBill(t))
	require.NoError(t, err)
	second, err := s.Upsert(ctx, sampleBill(t))
	require.NoError(t, err)

	if diff := cmp.Diff(first, second, ignoreModDate); diff != "" {
		t.Errorf("second Upsert() changed content (-first +second):\n%s", diff)
	}
	require.True(t, second.ModDate.After(first.ModDate))

	count, err := s.CountBills(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestBillStore_UpsertMonotonic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s := NewBillStore(db).WithClock(func() time.Time { return t0.Add(time.Hour) })
	newer, err := s.Upsert(ctx, sampleBill(t))
	require.NoError(t, err)

	// a stale page and a clock running behind
	stale := sampleBill(t)
	stale.UpdateDate = nullTime(time.Date(2019, 1, 20, 0, 0, 0, 0, time.UTC))
	stale.Title = model.NullString("OLD TITLE")
	s.WithClock(func() time.Time { return t0 })

	got, err := s.Upsert(ctx, stale)
	require.NoError(t, err)
	require.True(t, got.UpdateDate.Time.Equal(newer.UpdateDate.Time), "update_date went backwards")
	require.True(t, got.ModDate.Equal(newer.ModDate), "mod_date went backwards")
	// present fields still overwrite
	require.Equal(t, "OLD TITLE", got.Title.String)

	// a strictly newer update_date advances
	fresh := sampleBill(t)
	fresh.UpdateDate = nullTime(time.Date(2019, 3, 1, 8, 0, 0, 0, time.UTC))
	s.WithClock(func() time.Time { return t0.Add(2 * time.Hour) })
	got, err = s.Upsert(ctx, fresh)
	require.NoError(t, err)
	require.True(t, got.UpdateDate.Time.Equal(fresh.UpdateDate.Time))
	require.True(t, got.ModDate.Equal(t0.Add(2*time.Hour)))
}

func TestBillStore_UpsertNoClobber(t *testing.T) {
	s := NewBillStore(newTestDB(t)).WithClock(tick(t0))
	ctx := context.Background()

	full, err := s.Upsert(ctx, sampleBill(t))
	require.NoError(t, err)

	sparse := &model.Bill{ID: billID(t, "HB73"), Title: model.NullString("EXEMPT NM FROM DAYLIGHT SAVINGS TIME")}
	got, err := s.Upsert(ctx, sparse)
	require.NoError(t, err)

	if diff := cmp.Diff(full, got, ignoreModDate); diff != "" {
		t.Errorf("sparse Upsert() erased fields (-want +got):\n%s", diff)
	}
}

func TestBillStore_UpsertSetsMissingUpdateDate(t *testing.T) {
	s := NewBillStore(newTestDB(t)).WithClock(tick(t0))
	ctx := context.Background()

	sparse := &model.Bill{ID: billID(t, "HB100"), Title: model.NullString("LOCAL ELECTION ACT CHANGES")}
	got, err := s.Upsert(ctx, sparse)
	require.NoError(t, err)
	require.False(t, got.UpdateDate.Valid)
	require.False(t, got.Sponsor.Valid)
	require.False(t, got.LastActionDate.Valid)

	sparse.UpdateDate = nullTime(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))
	got, err = s.Upsert(ctx, sparse)
	require.NoError(t, err)
	require.True(t, got.UpdateDate.Valid)
}

func TestBillStore_ConcurrentUpserts(t *testing.T) {
	s := NewBillStore(newTestDB(t)).WithClock(tick(t0))
	ctx := context.Background()

	var wg sync.WaitGroup
	for day := 1; day <= 20; day++ {
		day := day
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := sampleBill(t)
			b.UpdateDate = nullTime(time.Date(2019, 2, day, 0, 0, 0, 0, time.UTC))
			_, err := s.Upsert(ctx, b)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, billID(t, "HB73"))
	require.NoError(t, err)
	require.True(t, got.UpdateDate.Time.Equal(time.Date(2019, 2, 20, 0, 0, 0, 0, time.UTC)))
	require.True(t, got.ModDate.Equal(t0.Add(20*time.Minute)))
}

func TestBillStore_ListByUpdateDate(t *testing.T) {
	s := NewBillStore(newTestDB(t)).WithClock(tick(t0))
	ctx := context.Background()

	upsert := func(designation, year string, update *time.Time) {
		id, err := model.ParseDesignation(designation, year)
		require.NoError(t, err)
		b := &model.Bill{ID: id}
		if update != nil {
			b.UpdateDate = nullTime(*update)
		}
		_, err = s.Upsert(ctx, b)
		require.NoError(t, err)
	}
	day := func(d int) *time.Time {
		v := time.Date(2019, 2, d, 0, 0, 0, 0, time.UTC)
		return &v
	}

	upsert("SB21", "19", day(3))
	upsert("HB100", "19", day(5))
	upsert("HB73", "19", day(5))
	upsert("HJR2", "19", nil)
	upsert("HB9", "19", day(1))
	upsert("HB1", "20", day(9))

	bills, err := s.ListByUpdateDate(ctx, "19")
	require.NoError(t, err)

	var got []string
	for _, b := range bills {
		got = append(got, b.Designation())
	}
	require.Equal(t, []string{"HB73", "HB100", "SB21", "HB9", "HJR2"}, got)

	for i := 1; i < len(bills); i++ {
		prev, cur := bills[i-1].UpdateDate, bills[i].UpdateDate
		if prev.Valid && cur.Valid {
			require.False(t, prev.Time.Before(cur.Time))
		}
	}

	empty, err := s.ListByUpdateDate(ctx, "21")
	require.NoError(t, err)
	require.Empty(t, empty)
}
