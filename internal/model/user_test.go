package model

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateUsername(t *testing.T) {
	require.NoError(t, ValidateUsername("alice"))
	require.NoError(t, ValidateUsername(strings.Repeat("a", MaxUsernameLength)))

	require.Error(t, ValidateUsername(""))
	require.Error(t, ValidateUsername("   "))
	require.Error(t, ValidateUsername("https://spam.example"))
	require.Error(t, ValidateUsername(strings.Repeat("a", MaxUsernameLength+1)))
}

func TestActivityFor(t *testing.T) {
	jan := sql.NullTime{Time: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), Valid: true}
	feb := sql.NullTime{Time: time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC), Valid: true}
	checked := jan
	var none sql.NullTime

	tests := []struct {
		name   string
		marker CheckMarker
		update sql.NullTime
		want   Activity
	}{
		{"never checked", CheckMarker{}, feb, ActivityFirstCheck},
		{"never checked, no update date", CheckMarker{}, none, ActivityFirstCheck},
		{"same update date", CheckMarker{CheckedAt: checked, SeenUpdateDate: jan}, jan, ActivityUnchanged},
		{"newer update date", CheckMarker{CheckedAt: checked, SeenUpdateDate: jan}, feb, ActivityNewActivity},
		{"older update date", CheckMarker{CheckedAt: checked, SeenUpdateDate: feb}, jan, ActivityUnchanged},
		{"first update date since check", CheckMarker{CheckedAt: checked}, jan, ActivityNewActivity},
		{"still no update date", CheckMarker{CheckedAt: checked}, none, ActivityUnchanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ActivityFor(tt.marker, tt.update))
		})
	}
}
