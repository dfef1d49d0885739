package model

import (
	"database/sql"
	"strings"
	"time"

	"github.com/jjenkins/billtracker/internal/common"
)

// MaxUsernameLength bounds usernames; longer ones are almost always spam
const MaxUsernameLength = 60

// User is a registered account tracking bills
type User struct {
	Username     string
	Email        sql.NullString
	PasswordHash string
	CreatedAt    time.Time
	LastCheck    sql.NullTime // last dashboard view
}

// ValidateUsername rejects empty, overlong and link-bearing usernames
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return &common.ValidationError{Field: "username", Msg: "a username is required"}
	}
	if strings.Contains(username, "://") {
		return &common.ValidationError{Field: "username", Msg: "that doesn't look like a username"}
	}
	if len(username) > MaxUsernameLength {
		return &common.ValidationError{Field: "username", Msg: "please use a shorter username"}
	}
	return nil
}

// Activity is the per-user change status of a tracked bill
type Activity string

const (
	ActivityFirstCheck  Activity = "first-check"
	ActivityUnchanged   Activity = "unchanged"
	ActivityNewActivity Activity = "new-activity"
)

// CheckMarker is what a user saw of a bill at their last check
type CheckMarker struct {
	CheckedAt      sql.NullTime // null until the first check
	SeenUpdateDate sql.NullTime // bill update_date at the last check
	Generation     int64        // bumped on every advance
}

// ActivityFor compares a marker with the bill's current update_date
func ActivityFor(marker CheckMarker, updateDate sql.NullTime) Activity {
	if !marker.CheckedAt.Valid {
		return ActivityFirstCheck
	}
	if !updateDate.Valid {
		return ActivityUnchanged
	}
	if !marker.SeenUpdateDate.Valid || updateDate.Time.After(marker.SeenUpdateDate.Time) {
		return ActivityNewActivity
	}
	return ActivityUnchanged
}

// TrackedBill is one row of a user's dashboard
type TrackedBill struct {
	Bill     Bill
	Position int
	Marker   CheckMarker
	Activity Activity
}

// TrackedBillStatus is the JSON view of a dashboard row
type TrackedBillStatus struct {
	BillStatus
	Activity Activity `json:"activity"`
}
