package service

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/jjenkins/billtracker/internal/common"
	"github.com/jjenkins/billtracker/internal/model"
)

const listingSelector = "#MainContent_gridViewLegislation"

var billLinkRe = regexp.MustCompile(`(?i)Legislation\?chamber=([SHJ])&legtype=([A-Z]+)&legno=(\d+)&year=(\d\d)`)

// ParseListing returns the bill identities linked from a listing page, in page order
// and without duplicates. A non-empty year keeps only that session's bills.
func ParseListing(content []byte, year string) ([]model.BillID, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, &common.ParseError{Page: "listing", Reason: err.Error()}
	}

	grid := doc.Find(listingSelector)
	if grid.Length() == 0 {
		return nil, &common.ParseError{Page: "listing", Reason: "no legislation grid on page"}
	}

	seen := make(map[model.BillID]bool)
	var ids []model.BillID
	grid.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		m := billLinkRe.FindStringSubmatch(a.AttrOr("href", ""))
		if m == nil {
			return
		}
		number, err := strconv.Atoi(m[3])
		if err != nil {
			return
		}
		id, err := model.ParseDesignation(m[1]+m[2]+strconv.Itoa(number), m[4])
		if err != nil {
			return
		}
		if year != "" && id.Year != year {
			return
		}
		if seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	})

	return ids, nil
}
