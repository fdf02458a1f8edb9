// Package era holds the static table of legislative periods and the
// identifier rules derived from them.
package era

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Adapter selects the list/metadata extractor pair used for an era.
type Adapter string

// Supported adapters.
const (
	AdapterHTML Adapter = "html"
	AdapterREST Adapter = "rest"
)

// FetchOnce is the page-size hint for sources that return the whole list in a
// single response.
const FetchOnce = -1

const filePrefix = "proyectos-ley-"

// Period is the year range of a legislative era.
type Period struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// String renders the period as "from-to".
func (p Period) String() string {
	return fmt.Sprintf("%d-%d", p.From, p.To)
}

// BillID composes the relational key of a bill: the number is zero-padded to
// at least six digits and never truncated.
func (p Period) BillID(number int) string {
	return fmt.Sprintf("%d-%d-%06d", p.From, p.To, number)
}

// GroupedID resolves a raw grouped-initiative token. Only tokens of exactly
// four characters are padded, and only by a single zero.
func (p Period) GroupedID(token string) string {
	t := strings.TrimSpace(token)
	if utf8.RuneCountInString(t) == 4 {
		t = "0" + t
	}
	return fmt.Sprintf("%d-%d-%s", p.From, p.To, t)
}

// Filename is the extension-less base name shared by the cache and database
// artifacts of the era.
func (p Period) Filename() string {
	return filePrefix + p.String()
}

// CacheName is the JSON cache object name.
func (p Period) CacheName() string {
	return p.Filename() + ".json"
}

// DatabaseName is the SQLite file name.
func (p Period) DatabaseName() string {
	return p.Filename() + ".db"
}

// Era is the immutable source configuration of a period.
type Era struct {
	Period
	// ListURL is the list address. HTML eras append the offset to it.
	ListURL string
	// DetailBase prefixes relative detail links (HTML) or builds the per-bill
	// endpoint and record address (REST).
	DetailBase string
	// PageSize is the pagination hint or FetchOnce.
	PageSize int
	Adapter  Adapter
}

// Paged reports whether the list must be walked page by page.
func (e Era) Paged() bool {
	return e.PageSize != FetchOnce
}

// PageURL is the list address for the given 1-based offset.
func (e Era) PageURL(offset int) string {
	return e.ListURL + strconv.Itoa(offset)
}

// DetailURL is the per-bill REST endpoint.
func (e Era) DetailURL(number int) string {
	return fmt.Sprintf("%s/spley-portal-service/expediente/%d/%d", e.DetailBase, e.From, number)
}

// RecordURL is the public portal address of a REST-era bill.
func (e Era) RecordURL(number int) string {
	return fmt.Sprintf("%s/spley-portal/#/expediente/%d/%d", e.DetailBase, e.From, number)
}
