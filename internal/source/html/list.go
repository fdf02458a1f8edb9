// Package htmlsource extracts bill lists and details from the legacy Lotus
// Notes pages served for the 1995-2021 eras.
package htmlsource

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/bill"
	"github.com/openpolitica/proyectos-ley/internal/crawler"
	"github.com/openpolitica/proyectos-ley/internal/era"
)

const (
	listTableSelector = `table[cellpadding="2"]`
	listRowSelector   = `tr[valign="top"]`
	listColumns       = 5
)

// ListExtractor walks the paginated "by number" view of an era.
type ListExtractor struct {
	fetcher crawler.PageFetcher
	logger  *zap.Logger
}

// NewListExtractor builds a ListExtractor.
func NewListExtractor(fetcher crawler.PageFetcher, logger *zap.Logger) *ListExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListExtractor{fetcher: fetcher, logger: logger}
}

// List fetches pages starting at offset 1 and advancing by the page-size hint
// while the previous page was full. A page that fails to parse keeps the rows
// read before the failure; a page that cannot be fetched fails the era.
func (x *ListExtractor) List(ctx context.Context, e era.Era) ([]bill.Reference, error) {
	logger := x.logger.With(zap.Stringer("era", e.Period))
	var (
		refs      []bill.Reference
		prevFirst *bill.Reference
	)
	for offset := 1; ; offset += e.PageSize {
		url := e.PageURL(offset)
		page, err := x.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("list era %s offset %d: %w", e, offset, err)
		}
		rows, err := ParseListPage(e, page.Body)
		if err != nil {
			logger.Warn("list page parse failed",
				zap.Int("offset", offset),
				zap.Int("rows", len(rows)),
				zap.Error(err),
			)
		}
		logger.Debug("list page read", zap.Int("offset", offset), zap.Int("rows", len(rows)))
		if len(rows) > 0 && prevFirst != nil && rows[0] == *prevFirst {
			logger.Warn("list page repeated previous page; stopping", zap.Int("offset", offset))
			break
		}
		refs = append(refs, rows...)
		if !e.Paged() || len(rows) != e.PageSize {
			break
		}
		first := rows[0]
		prevFirst = &first
	}
	logger.Info("list extracted", zap.Int("count", len(refs)))
	return bill.UniqueReferences(refs), nil
}

// ParseListPage reads the rows of one list page. On error it returns the rows
// parsed before the failing one together with an error wrapping
// crawler.ErrPageParse.
func ParseListPage(e era.Era, body []byte) ([]bill.Reference, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse list html: %w: %w", crawler.ErrPageParse, err)
	}
	table := doc.Find(listTableSelector).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("list table not found: %w", crawler.ErrPageParse)
	}
	var (
		refs   []bill.Reference
		rowErr error
	)
	table.Find(listRowSelector).EachWithBreak(func(i int, row *goquery.Selection) bool {
		ref, err := parseListRow(e, row)
		if err != nil {
			rowErr = fmt.Errorf("row %d: %w: %w", i, crawler.ErrPageParse, err)
			return false
		}
		refs = append(refs, ref)
		return true
	})
	return refs, rowErr
}

func parseListRow(e era.Era, row *goquery.Selection) (bill.Reference, error) {
	cells := row.Find("td")
	if cells.Length() < listColumns {
		return bill.Reference{}, fmt.Errorf("expected %d cells, got %d", listColumns, cells.Length())
	}
	link := cells.Eq(0).Find("a").First()
	number, err := strconv.Atoi(strings.TrimSpace(link.Text()))
	if err != nil {
		return bill.Reference{}, fmt.Errorf("bill number: %w", err)
	}
	href, _ := link.Attr("href")

	lastModified, err := cellDate(cells.Eq(1))
	if err != nil {
		return bill.Reference{}, fmt.Errorf("last modified: %w", err)
	}
	presented, err := cellDate(cells.Eq(2))
	if err != nil {
		return bill.Reference{}, fmt.Errorf("presented: %w", err)
	}
	return bill.Reference{
		Period:       e.Period,
		Number:       number,
		LastModified: lastModified,
		PresentedOn:  presented,
		Status:       cellText(cells.Eq(3)),
		Title:        cellText(cells.Eq(4)),
		URL:          absolute(e.DetailBase, href),
	}, nil
}

func cellText(cell *goquery.Selection) string {
	return bill.CollapseSpace(cell.Find("font").Text())
}

func cellDate(cell *goquery.Selection) (bill.Date, error) {
	text := cellText(cell)
	if text == "" {
		return bill.Date{}, nil
	}
	return bill.ParseDate(bill.LayoutUS, text)
}

func absolute(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return strings.TrimRight(base, "/") + ref
}
