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

// Hidden form fields of the detail page.
const (
	fieldCode            = "CodIni"
	fieldEraCode         = "CodIni_web"
	fieldTitle           = "TitIni"
	fieldStatus          = "CodUltEsta"
	fieldPresented       = "FecPres"
	fieldLegislature     = "DesLegis"
	fieldProponent       = "DesPropo"
	fieldSummary         = "SumIni"
	fieldGroup           = "DesGrupParla"
	fieldGroupAlt        = "DesGrupPol"
	fieldCommittee       = "NombreDeLaComision"
	fieldRecordLink      = "NombreDelEnlace"
	fieldAuthors         = "NomCongre"
	fieldAdherents       = "Adherentes"
	trackingRowPrefix    = "Seguimiento:"
	referralLabel        = "Envío a Comisión:"
	referralTextSelector = `font[size="3"]`
	hiddenFieldSelector  = `input[name=%q]`
)

// MetadataExtractor reads the hidden form fields and tracking text of a
// legacy detail page.
type MetadataExtractor struct {
	fetcher crawler.PageFetcher
	logger  *zap.Logger
}

// NewMetadataExtractor builds a MetadataExtractor.
func NewMetadataExtractor(fetcher crawler.PageFetcher, logger *zap.Logger) *MetadataExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataExtractor{fetcher: fetcher, logger: logger}
}

// Metadata fetches and parses the detail page of ref.
func (x *MetadataExtractor) Metadata(ctx context.Context, e era.Era, ref bill.Reference) (bill.Metadata, error) {
	page, err := x.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		return bill.Metadata{}, fmt.Errorf("detail %s: %w", ref.ID(), err)
	}
	m, err := ParseDetailPage(e, ref, page.Body)
	if crawler.IsSoftMiss(err) {
		x.logger.Warn("detail page has no bill code; using list data",
			zap.String("bill_id", ref.ID()),
			zap.String("url", ref.URL),
		)
	}
	return m, err
}

type hiddenFields struct {
	inputs *goquery.Selection
}

func (h hiddenFields) lookup(name string) (string, bool) {
	sel := h.inputs.Filter(fmt.Sprintf(hiddenFieldSelector, name)).First()
	if sel.Length() == 0 {
		return "", false
	}
	v, _ := sel.Attr("value")
	return v, true
}

func (h hiddenFields) text(name string) string {
	v, _ := h.lookup(name)
	return strings.TrimSpace(v)
}

// ParseDetailPage normalizes a detail page. A page without the bill code
// field is a soft miss: the fallback record is returned with an error
// wrapping crawler.ErrSoftMiss.
func ParseDetailPage(e era.Era, ref bill.Reference, body []byte) (bill.Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return bill.Metadata{}, fmt.Errorf("parse detail html %s: %w", ref.ID(), err)
	}
	fields := hiddenFields{inputs: doc.Find("input")}

	code, ok := fields.lookup(fieldCode)
	if !ok {
		return bill.FromReference(ref), fmt.Errorf("detail %s: %s field missing: %w", ref.ID(), fieldCode, crawler.ErrSoftMiss)
	}
	number, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		number = ref.Number
	}

	tracking := bill.ParseTracking(trackingText(doc))
	authors := bill.ParseSigners(fields.text(fieldAuthors))

	m := bill.Metadata{
		Period:             ref.Period,
		Number:             number,
		EraCode:            fields.text(fieldEraCode),
		Title:              firstNonEmpty(fields.text(fieldTitle), ref.Title),
		Status:             firstNonEmpty(fields.text(fieldStatus), ref.Status),
		PresentedOn:        presentedOn(fields, ref),
		Legislature:        fields.text(fieldLegislature),
		Proponent:          fields.text(fieldProponent),
		Summary:            fields.text(fieldSummary),
		ParliamentaryGroup: parliamentaryGroup(fields),
		Adherents:          bill.ParseSigners(fields.text(fieldAdherents)),
		Tracking:           tracking,
		Committees:         bill.CommitteesFromTracking(tracking),
		CurrentCommittee:   fields.text(fieldCommittee),
		RecordURL:          firstNonEmpty(absolute(e.DetailBase, fields.text(fieldRecordLink)), ref.URL),
	}
	if len(authors) > 0 {
		author := authors[0]
		m.Author = &author
		m.CoAuthors = authors[1:]
	}
	return m, nil
}

// trackingText prefers the "Seguimiento:" row and falls back to the referral
// cell.
func trackingText(doc *goquery.Document) string {
	var text string
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		t := bill.CollapseSpace(row.Text())
		if strings.HasPrefix(t, trackingRowPrefix) {
			text = t
			return false
		}
		return true
	})
	if text != "" {
		return text
	}
	doc.Find("td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if bill.CollapseSpace(cell.Find("b").Text()) == referralLabel {
			text = bill.CollapseSpace(cell.Find(referralTextSelector).Text())
			return false
		}
		return true
	})
	return text
}

func presentedOn(fields hiddenFields, ref bill.Reference) bill.Date {
	raw := fields.text(fieldPresented)
	if raw == "" {
		return ref.PresentedOn
	}
	d, err := bill.ParseDate(bill.LayoutUS, raw)
	if err != nil {
		return ref.PresentedOn
	}
	return d
}

// parliamentaryGroup reads DesGrupParla and falls back to DesGrupPol only
// when DesGrupParla is present but blank.
func parliamentaryGroup(fields hiddenFields) string {
	v, ok := fields.lookup(fieldGroup)
	if !ok {
		return ""
	}
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fields.text(fieldGroupAlt)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
