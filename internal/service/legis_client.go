package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jjenkins/billtracker/internal/common"
	"github.com/jjenkins/billtracker/internal/model"
)

const (
	DefaultBaseURL = "https://www.nmlegis.gov"
	defaultTimeout = 30 * time.Second
	listingPath    = "/Legislation/Legislation_List"
)

var tracer = otel.Tracer("billtracker/service")

// Page is the raw content retrieved for a bill or a listing
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Fetcher retrieves legislature pages. Implementations never retry.
type Fetcher interface {
	FetchBill(ctx context.Context, id model.BillID) (*Page, error)
	FetchListing(ctx context.Context) (*Page, error)
}

// BillURL builds the page URL for one bill
func BillURL(baseURL string, id model.BillID) string {
	return fmt.Sprintf("%s/Legislation/Legislation?chamber=%s&legtype=%s&legno=%d&year=%s",
		baseURL, url.QueryEscape(id.Chamber), url.QueryEscape(id.BillType), id.Number, url.QueryEscape(id.Year))
}

// ListingURL builds the URL of the session's bill listing
func ListingURL(baseURL string) string {
	return baseURL + listingPath
}

// LegisClient fetches pages from the legislature's website
type LegisClient struct {
	client  *resty.Client
	baseURL string
}

// NewLegisClient creates a client with a bounded per-request timeout
func NewLegisClient(baseURL string, timeout time.Duration) *LegisClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "billtracker/1.0")

	return &LegisClient{client: client, baseURL: baseURL}
}

// BaseURL returns the site root the client fetches from
func (c *LegisClient) BaseURL() string {
	return c.baseURL
}

// FetchBill retrieves the page for a single bill
func (c *LegisClient) FetchBill(ctx context.Context, id model.BillID) (*Page, error) {
	return c.fetch(ctx, BillURL(c.baseURL, id))
}

// FetchListing retrieves the session's bill listing
func (c *LegisClient) FetchListing(ctx context.Context) (*Page, error) {
	return c.fetch(ctx, ListingURL(c.baseURL))
}

func (c *LegisClient) fetch(ctx context.Context, pageURL string) (*Page, error) {
	ctx, span := tracer.Start(ctx, "LegisClient.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", pageURL))

	res, err := c.client.R().
		SetContext(ctx).
		Get(pageURL)
	if err != nil {
		fetchErr := classifyTransportError(ctx, pageURL, err)
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, string(fetchErr.Cause))
		return nil, fetchErr
	}

	status := res.StatusCode()
	span.SetAttributes(attribute.Int("status", status))

	switch {
	case status == http.StatusNotFound:
		return nil, &common.FetchError{Cause: common.FetchNotFound, URL: pageURL, StatusCode: status}
	case status < 200 || status >= 300:
		span.SetStatus(codes.Error, "unexpected status")
		return nil, &common.FetchError{Cause: common.FetchServerError, URL: pageURL, StatusCode: status}
	}

	return &Page{URL: pageURL, StatusCode: status, Body: res.Body()}, nil
}

func classifyTransportError(ctx context.Context, pageURL string, err error) *common.FetchError {
	cause := common.FetchNetwork

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		cause = common.FetchTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		cause = common.FetchTimeout
	}

	return &common.FetchError{Cause: cause, URL: pageURL, Err: err}
}

// DirFetcher serves pages from a directory laid out like a page cache:
// 2019-HB73.html for bills and Legislation_List.html for the listing.
// Anything missing is reported as not found.
type DirFetcher struct {
	Dir     string
	BaseURL string
}

// CacheFilename is the file a bill page is stored under
func CacheFilename(id model.BillID) string {
	return fmt.Sprintf("20%s-%s%s%d.html", id.Year, id.Chamber, id.BillType, id.Number)
}

func (d *DirFetcher) baseURL() string {
	if d.BaseURL == "" {
		return DefaultBaseURL
	}
	return d.BaseURL
}

// FetchBill reads the cached page for id, 20YY-{C}{T}{N}.html
func (d *DirFetcher) FetchBill(ctx context.Context, id model.BillID) (*Page, error) {
	return d.read(ctx, BillURL(d.baseURL(), id), CacheFilename(id))
}

// FetchListing reads the cached Legislation_List.html
func (d *DirFetcher) FetchListing(ctx context.Context) (*Page, error) {
	return d.read(ctx, ListingURL(d.baseURL()), "Legislation_List.html")
}

func (d *DirFetcher) read(ctx context.Context, pageURL, name string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, &common.FetchError{Cause: common.FetchTimeout, URL: pageURL, Err: err}
	}
	body, err := os.ReadFile(filepath.Join(d.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &common.FetchError{Cause: common.FetchNotFound, URL: pageURL, StatusCode: http.StatusNotFound}
	}
	if err != nil {
		return nil, &common.FetchError{Cause: common.FetchNetwork, URL: pageURL, Err: err}
	}
	return &Page{URL: pageURL, StatusCode: http.StatusOK, Body: body}, nil
}

// StaticFetcher serves fixed content keyed by URL and 404 for everything else.
// It counts requests so callers can assert what was fetched.
type StaticFetcher struct {
	BaseURL string
	Pages   map[string][]byte

	mu       sync.Mutex
	requests []string
}

// NewStaticFetcher creates an empty StaticFetcher rooted at baseURL
func NewStaticFetcher(baseURL string) *StaticFetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &StaticFetcher{BaseURL: baseURL, Pages: make(map[string][]byte)}
}

// AddBill registers content for a bill page
func (s *StaticFetcher) AddBill(id model.BillID, content []byte) {
	s.Pages[BillURL(s.BaseURL, id)] = content
}

// AddListing registers content for the listing page
func (s *StaticFetcher) AddListing(content []byte) {
	s.Pages[ListingURL(s.BaseURL)] = content
}

// Requests returns the URLs fetched so far
func (s *StaticFetcher) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// FetchBill serves the content registered with AddBill
func (s *StaticFetcher) FetchBill(ctx context.Context, id model.BillID) (*Page, error) {
	return s.get(ctx, BillURL(s.BaseURL, id))
}

// FetchListing serves the content registered with AddListing
func (s *StaticFetcher) FetchListing(ctx context.Context) (*Page, error) {
	return s.get(ctx, ListingURL(s.BaseURL))
}

func (s *StaticFetcher) get(ctx context.Context, pageURL string) (*Page, error) {
	s.mu.Lock()
	s.requests = append(s.requests, pageURL)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &common.FetchError{Cause: common.FetchTimeout, URL: pageURL, Err: err}
	}
	body, ok := s.Pages[pageURL]
	if !ok {
		return nil, &common.FetchError{Cause: common.FetchNotFound, URL: pageURL, StatusCode: http.StatusNotFound}
	}
	return &Page{URL: pageURL, StatusCode: http.StatusOK, Body: body}, nil
}
