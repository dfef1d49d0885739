package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/jjenkins/billtracker/internal/common"
	"github.com/jjenkins/billtracker/internal/lock"
	"github.com/jjenkins/billtracker/internal/model"
	"github.com/jjenkins/billtracker/internal/store"
)

const defaultConcurrency = 4

// Outcome is the result of refreshing one bill as part of a batch
type Outcome struct {
	ID  model.BillID
	Err error
}

// RefreshStats tracks batch refresh statistics
type RefreshStats struct {
	Total     int
	Refreshed int
	Failed    int
}

// ListingResult holds per-bill outcomes in listing order
type ListingResult struct {
	Year     string
	Outcomes []Outcome
	Stats    RefreshStats
}

// Failed returns only the outcomes that did not succeed
func (r *ListingResult) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Refresher drives the fetch, parse and store pipeline
type Refresher struct {
	fetcher     Fetcher
	parser      *Parser
	bills       *store.BillStore
	locker      lock.Locker
	concurrency int
	logger      *slog.Logger
}

// NewRefresher creates a new Refresher. A nil locker means an in-process keyed mutex.
func NewRefresher(fetcher Fetcher, parser *Parser, bills *store.BillStore, locker lock.Locker) *Refresher {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &Refresher{
		fetcher:     fetcher,
		parser:      parser,
		bills:       bills,
		locker:      locker,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
}

// WithConcurrency bounds how many bills RefreshListing refreshes at once
func (r *Refresher) WithConcurrency(n int) *Refresher {
	if n > 0 {
		r.concurrency = n
	}
	return r
}

// WithLogger replaces the default logger
func (r *Refresher) WithLogger(logger *slog.Logger) *Refresher {
	r.logger = logger
	return r
}

// RefreshOne fetches, parses and stores a single bill and returns its designation
func (r *Refresher) RefreshOne(ctx context.Context, id model.BillID) (string, error) {
	if _, err := r.Refresh(ctx, id); err != nil {
		return "", err
	}
	return id.Designation(), nil
}

// Refresh is RefreshOne returning the stored record. Nothing is written unless
// both the fetch and the parse succeed.
func (r *Refresher) Refresh(ctx context.Context, id model.BillID) (*model.Bill, error) {
	ctx, span := tracer.Start(ctx, "Refresher.Refresh")
	defer span.End()
	span.SetAttributes(attribute.String("bill", id.String()))

	unlock, err := r.locker.Lock(ctx, lockKey(id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock")
		if ctx.Err() != nil {
			// gave up waiting behind another refresh of the same bill
			return nil, &common.FetchError{Cause: common.FetchTimeout, URL: id.String(), Err: err}
		}
		return nil, fmt.Errorf("failed to lock %s: %w", id, err)
	}
	defer unlock()

	page, err := r.fetcher.FetchBill(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch")
		return nil, err
	}

	parsed, err := r.parser.Parse(id, page.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse")
		return nil, err
	}

	stored, err := r.bills.Upsert(ctx, parsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store")
		return nil, err
	}

	r.logger.InfoContext(ctx, "refreshed bill", "bill", id.Designation(), "year", id.Year,
		"update_date", stored.UpdateDate.Time, "has_update_date", stored.UpdateDate.Valid)
	return stored, nil
}

// RefreshListing refreshes every bill of the session listing. A failing bill is
// recorded in its outcome and never stops the others; only a listing that cannot be
// fetched or parsed fails the call.
func (r *Refresher) RefreshListing(ctx context.Context, year string) (*ListingResult, error) {
	ctx, span := tracer.Start(ctx, "Refresher.RefreshListing")
	defer span.End()
	span.SetAttributes(attribute.String("year", year))

	r.logger.InfoContext(ctx, "fetching bill listing", "year", year)
	page, err := r.fetcher.FetchListing(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch listing: %w", err)
	}

	ids, err := ParseListing(page.Body, year)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	result := &ListingResult{Year: year, Outcomes: make([]Outcome, len(ids))}
	result.Stats.Total = len(ids)
	r.logger.InfoContext(ctx, "found bills to refresh", "year", year, "count", len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for idx, id := range ids {
		idx, id := idx, id
		g.Go(func() error {
			_, err := r.Refresh(gctx, id)
			if err != nil {
				r.logger.ErrorContext(gctx, "failed to refresh bill", "bill", id.Designation(), "year", id.Year, "err", err)
			}
			result.Outcomes[idx] = Outcome{ID: id, Err: err}
			// per-bill failures are outcomes, not group errors
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range result.Outcomes {
		if o.Err != nil {
			result.Stats.Failed++
		} else {
			result.Stats.Refreshed++
		}
	}
	span.SetAttributes(attribute.Int("refreshed", result.Stats.Refreshed), attribute.Int("failed", result.Stats.Failed))

	return result, nil
}

// PrintSummary writes the batch outcomes and totals as a table
func PrintSummary(w io.Writer, result *ListingResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	// keep error text and totals as written
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Bill", "Year", "Result"})
	for _, o := range result.Outcomes {
		status := "OK"
		if o.Err != nil {
			status = "FAIL " + o.Err.Error()
		}
		t.AppendRow(table.Row{o.ID.Designation(), o.ID.Year, status})
	}
	t.AppendFooter(table.Row{"Total", result.Stats.Total, fmt.Sprintf("%d refreshed, %d failed", result.Stats.Refreshed, result.Stats.Failed)})
	t.Render()
}

func lockKey(id model.BillID) string {
	return "bill:" + id.Year + ":" + id.Designation()
}
