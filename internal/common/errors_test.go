package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", &ValidationError{Field: "billno", Msg: "bad"}, http.StatusBadRequest},
		{"fetch not found", &FetchError{Cause: FetchNotFound, URL: "u"}, http.StatusNotFound},
		{"fetch timeout", fmt.Errorf("wrapped: %w", &FetchError{Cause: FetchTimeout, Err: context.DeadlineExceeded}), http.StatusGatewayTimeout},
		{"fetch server error", &FetchError{Cause: FetchServerError, StatusCode: 500}, http.StatusBadGateway},
		{"fetch network", &FetchError{Cause: FetchNetwork}, http.StatusBadGateway},
		{"parse", &ParseError{Page: "bill", Reason: "no form"}, http.StatusBadGateway},
		{"unknown bill", fmt.Errorf("HB73: %w", ErrUnknownBill), http.StatusNotFound},
		{"not tracked", ErrNotTracked, http.StatusNotFound},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"conflict", ErrConflict, http.StatusConflict},
		{"pgx unique", &pgconn.PgError{Code: "23505"}, http.StatusConflict},
		{"pq unique", &pq.Error{Code: "23505"}, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, HTTPStatusFromError(tt.err))
		})
	}
}

func TestFetchError(t *testing.T) {
	err := &FetchError{Cause: FetchTimeout, URL: "https://example.test", Err: context.DeadlineExceeded}
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, IsFetchCause(fmt.Errorf("refresh: %w", err), FetchTimeout))
	require.False(t, IsFetchCause(err, FetchNotFound))
	require.Contains(t, err.Error(), "timeout")

	notFound := &FetchError{Cause: FetchNotFound, URL: "u", StatusCode: 404}
	require.Equal(t, "fetch u: not-found (HTTP 404)", notFound.Error())
}
