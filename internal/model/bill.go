package model

import (
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jjenkins/billtracker/internal/common"
)

// BillID identifies a bill within a legislative session
type BillID struct {
	Chamber  string // S, H or J
	BillType string // B, M, JR, CR, ...
	Number   int
	Year     string // two-digit year code, e.g. "19"
}

// Designation returns the canonical short form, e.g. HB73
func (id BillID) Designation() string {
	return fmt.Sprintf("%s%s%d", id.Chamber, id.BillType, id.Number)
}

func (id BillID) String() string {
	return fmt.Sprintf("%s (20%s)", id.Designation(), id.Year)
}

// Less orders identities by year, chamber, bill type and number
func (id BillID) Less(other BillID) bool {
	if id.Year != other.Year {
		return id.Year < other.Year
	}
	if id.Chamber != other.Chamber {
		return id.Chamber < other.Chamber
	}
	if id.BillType != other.BillType {
		return id.BillType < other.BillType
	}
	return id.Number < other.Number
}

var (
	designationRe = regexp.MustCompile(`^([SHJ])([A-Z]{1,3})0*(\d{1,4})$`)
	yearCodeRe    = regexp.MustCompile(`^\d{2}$`)
)

// ValidChambers are the first letters a bill designation may start with
var ValidChambers = []string{"S", "H", "J"}

// ParseDesignation validates a designation such as "hb73" and a year code such as "19".
// The designation is upper-cased before validation.
func ParseDesignation(designation, year string) (BillID, error) {
	d := strings.ToUpper(strings.Join(strings.Fields(designation), ""))
	if d == "" {
		return BillID{}, &common.ValidationError{Field: "billno", Msg: "a bill designation is required"}
	}
	if !strings.ContainsAny(d[:1], strings.Join(ValidChambers, "")) {
		return BillID{}, &common.ValidationError{Field: "billno", Msg: "bills should start with S, H or J"}
	}
	m := designationRe.FindStringSubmatch(d)
	if m == nil {
		return BillID{}, &common.ValidationError{Field: "billno", Msg: fmt.Sprintf("%q doesn't look like a bill designation", designation)}
	}
	year = strings.TrimSpace(year)
	if err := ValidateYearCode(year); err != nil {
		return BillID{}, err
	}

	number, _ := strconv.Atoi(m[3])
	return BillID{Chamber: m[1], BillType: m[2], Number: number, Year: year}, nil
}

// ValidateYearCode accepts two-digit session year codes such as "19"
func ValidateYearCode(year string) error {
	if !yearCodeRe.MatchString(year) {
		return &common.ValidationError{Field: "yearcode", Msg: fmt.Sprintf("%q is not a two-digit year code", year)}
	}
	return nil
}

// ParseDesignationList splits a comma separated list like "SB21, HB17"
func ParseDesignationList(list, year string) ([]BillID, error) {
	var ids []BillID
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := ParseDesignation(part, year)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, &common.ValidationError{Field: "billno", Msg: "a bill designation is required"}
	}
	return ids, nil
}

// Bill represents the stored state of a legislative bill.
// Every field except the identity may be absent.
type Bill struct {
	ID             BillID
	Title          sql.NullString
	Sponsor        sql.NullString
	SponsorLink    sql.NullString
	ContentsLink   sql.NullString
	AmendLink      sql.NullString
	FIRLink        sql.NullString
	LESCLink       sql.NullString
	StatusText     sql.NullString
	StatusHTML     sql.NullString
	LastActionDate sql.NullTime
	UpdateDate     sql.NullTime // legislature's own last-modified time
	ModDate        time.Time    // last successful ingest by this system
}

// Designation is shorthand for b.ID.Designation()
func (b *Bill) Designation() string {
	return b.ID.Designation()
}

// BillStatus is the JSON view of a bill
type BillStatus struct {
	Designation    string     `json:"billno"`
	Year           string     `json:"yearcode"`
	Title          string     `json:"title,omitempty"`
	Sponsor        string     `json:"sponsor,omitempty"`
	SponsorLink    string     `json:"sponsor_link,omitempty"`
	ContentsLink   string     `json:"contents_link,omitempty"`
	AmendLink      string     `json:"amend_link,omitempty"`
	FIRLink        string     `json:"fir_link,omitempty"`
	LESCLink       string     `json:"lesc_link,omitempty"`
	StatusText     string     `json:"status,omitempty"`
	LastActionDate *time.Time `json:"last_action_date,omitempty"`
	UpdateDate     *time.Time `json:"update_date,omitempty"`
	ModDate        time.Time  `json:"mod_date"`
}

// Status converts a Bill for API responses
func (b *Bill) Status() BillStatus {
	return BillStatus{
		Designation:    b.Designation(),
		Year:           b.ID.Year,
		Title:          b.Title.String,
		Sponsor:        b.Sponsor.String,
		SponsorLink:    b.SponsorLink.String,
		ContentsLink:   b.ContentsLink.String,
		AmendLink:      b.AmendLink.String,
		FIRLink:        b.FIRLink.String,
		LESCLink:       b.LESCLink.String,
		StatusText:     b.StatusText.String,
		LastActionDate: timePtr(b.LastActionDate),
		UpdateDate:     timePtr(b.UpdateDate),
		ModDate:        b.ModDate,
	}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// NullString returns a valid NullString for non-empty input
func NullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
