package service

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jjenkins/billtracker/internal/common"
	"github.com/jjenkins/billtracker/internal/model"
)

// Element ids on the legislature's bill page
const (
	formSelector       = "#MainContent_formViewLegislation"
	billIDSelector     = "#MainContent_formViewLegislation_lblBillID"
	titleSelector      = "#MainContent_formViewLegislation_lblTitle"
	sponsorSelector    = "a#MainContent_formViewLegislation_linkSponsor"
	locationSelector   = "#MainContent_formViewLegislation_lblLocation"
	lastUpdateSelector = "#MainContent_formViewLegislation_lblLastUpdate"
	actionsSelector    = "#MainContent_tabContainerLegislation_tabPanelActions_dataListActions"
)

var (
	contentsLinkRe = regexp.MustCompile(`(?i)/bills/(house|senate)/`)
	amendLinkRe    = regexp.MustCompile(`(?i)/Amendments_In_Context/`)
	firLinkRe      = regexp.MustCompile(`(?i)/firs/`)
	lescLinkRe     = regexp.MustCompile(`(?i)/LESCAnalysis/`)

	dateRe       = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

var dateLayouts = []string{
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// fieldExtractor fills in one field of b if the page has it.
// Extractors are independent: one finding nothing never stops the others.
type fieldExtractor struct {
	name    string
	extract func(doc *goquery.Selection, base *url.URL, b *model.Bill)
}

var billFields = []fieldExtractor{
	{"title", extractTitle},
	{"sponsor", extractSponsor},
	{"status", extractStatus},
	{"actions", extractActions},
	{"update_date", extractUpdateDate},
	{"contents_link", linkExtractor(contentsLinkRe, func(b *model.Bill, link string) { b.ContentsLink = model.NullString(link) })},
	{"amend_link", linkExtractor(amendLinkRe, func(b *model.Bill, link string) { b.AmendLink = model.NullString(link) })},
	{"fir_link", linkExtractor(firLinkRe, func(b *model.Bill, link string) { b.FIRLink = model.NullString(link) })},
	{"lesc_link", linkExtractor(lescLinkRe, func(b *model.Bill, link string) { b.LESCLink = model.NullString(link) })},
}

// Parser turns a fetched bill page into a Bill record
type Parser struct {
	base *url.URL
}

// NewParser creates a Parser that resolves relative links against baseURL
func NewParser(baseURL string) *Parser {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		base, _ = url.Parse(DefaultBaseURL)
	}
	return &Parser{base: base}
}

// Parse extracts whatever fields the page carries for bill id.
// It fails only when content is not a bill page at all.
func (p *Parser) Parse(id model.BillID, content []byte) (*model.Bill, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, &common.ParseError{Page: "bill", Reason: err.Error()}
	}

	form := doc.Find(formSelector)
	if form.Length() == 0 {
		return nil, &common.ParseError{Page: "bill", Reason: "no legislation form on page"}
	}

	if label := cleanText(doc.Find(billIDSelector).First().Text()); label != "" {
		if pageID, err := model.ParseDesignation(label, id.Year); err == nil && pageID != id {
			return nil, &common.ParseError{
				Page:   "bill",
				Reason: "page is for " + pageID.Designation() + ", not " + id.Designation(),
			}
		}
	}

	bill := &model.Bill{ID: id}
	for _, f := range billFields {
		f.extract(doc.Selection, p.base, bill)
	}

	return bill, nil
}

func extractTitle(doc *goquery.Selection, _ *url.URL, b *model.Bill) {
	b.Title = model.NullString(cleanText(doc.Find(titleSelector).First().Text()))
}

func extractSponsor(doc *goquery.Selection, base *url.URL, b *model.Bill) {
	a := doc.Find(sponsorSelector).First()
	if a.Length() == 0 {
		return
	}
	b.Sponsor = model.NullString(cleanText(a.Text()))
	if href, ok := a.Attr("href"); ok {
		b.SponsorLink = model.NullString(resolveLink(base, href))
	}
}

func extractStatus(doc *goquery.Selection, _ *url.URL, b *model.Bill) {
	b.StatusText = model.NullString(cleanText(doc.Find(locationSelector).First().Text()))
}

func extractActions(doc *goquery.Selection, _ *url.URL, b *model.Bill) {
	actions := doc.Find(actionsSelector).First()
	if actions.Length() == 0 {
		return
	}
	if html, err := actions.Html(); err == nil {
		b.StatusHTML = model.NullString(html)
	}

	// latest, not last: the site does not promise chronological order
	var latest time.Time
	for _, t := range actionDates(actions) {
		if t.After(latest) {
			latest = t
		}
	}
	if !latest.IsZero() {
		b.LastActionDate.Time, b.LastActionDate.Valid = latest, true
	}
}

// actionDates returns every valid date in the actions list. Text nodes are read
// one at a time so a <br> between a date and the next action still separates them.
func actionDates(actions *goquery.Selection) []time.Time {
	var dates []time.Time
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) != "#text" {
				walk(c)
				return
			}
			dates = append(dates, datesIn(c.Text())...)
		})
	}
	walk(actions)
	return dates
}

// datesIn finds M/D/YYYY dates not embedded in a longer run of digits
func datesIn(text string) []time.Time {
	var dates []time.Time
	for _, loc := range dateRe.FindAllStringIndex(text, -1) {
		if loc[0] > 0 && isDigit(text[loc[0]-1]) || loc[1] < len(text) && isDigit(text[loc[1]]) {
			continue
		}
		if t, ok := parseDate(text[loc[0]:loc[1]]); ok {
			dates = append(dates, t)
		}
	}
	return dates
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func extractUpdateDate(doc *goquery.Selection, _ *url.URL, b *model.Bill) {
	text := cleanText(doc.Find(lastUpdateSelector).First().Text())
	if t, ok := parseDate(text); ok {
		b.UpdateDate.Time, b.UpdateDate.Valid = t, true
	}
}

func linkExtractor(re *regexp.Regexp, set func(*model.Bill, string)) func(*goquery.Selection, *url.URL, *model.Bill) {
	return func(doc *goquery.Selection, base *url.URL, b *model.Bill) {
		doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href := strings.TrimSpace(a.AttrOr("href", ""))
			if !re.MatchString(href) {
				return true
			}
			set(b, resolveLink(base, href))
			return false
		})
	}
}

// parseDate accepts the handful of date formats the site uses; anything else is absent
func parseDate(s string) (time.Time, bool) {
	s = cleanText(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func resolveLink(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
