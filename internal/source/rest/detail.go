package restsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/bill"
	"github.com/openpolitica/proyectos-ley/internal/crawler"
	"github.com/openpolitica/proyectos-ley/internal/era"
)

// Signer role codes of the "firmantes" array.
const (
	roleAuthor   = 1
	roleCoAuthor = 2
	roleAdherent = 3
)

type detailPayload struct {
	General   generalSection  `json:"general"`
	Signers   []signerItem    `json:"firmantes"`
	Tracking  []trackingItem  `json:"seguimientos"`
	Committee []committeeItem `json:"comisiones"`
	Grouped   []groupedItem   `json:"acumulados"`
}

type generalSection struct {
	ID                 *flexInt `json:"pleyId"`
	EraCode            string   `json:"proyectoLey"`
	Title              string   `json:"titulo"`
	Status             string   `json:"desEstado"`
	Presented          string   `json:"fecPresentacion"`
	Legislature        string   `json:"desLegis"`
	Proponent          string   `json:"desProponente"`
	Summary            string   `json:"sumilla"`
	ParliamentaryGroup string   `json:"desGpar"`
}

type signerItem struct {
	Role    flexInt `json:"tipoFirmanteId"`
	Name    string  `json:"nombre"`
	DNI     string  `json:"dni"`
	Sex     string  `json:"sexo"`
	Profile string  `json:"pagWeb"`
}

type trackingItem struct {
	Date      string `json:"fecha"`
	Detail    string `json:"detalle"`
	Status    string `json:"desEstado"`
	Committee string `json:"desComisiones"`
}

type committeeItem struct {
	ID   flexInt `json:"id"`
	Name string  `json:"nombre"`
}

type groupedItem struct {
	Code string `json:"proyectoLey"`
}

// MetadataExtractor reads the per-bill record service.
type MetadataExtractor struct {
	client *Client
}

// NewMetadataExtractor builds a MetadataExtractor on client.
func NewMetadataExtractor(client *Client) *MetadataExtractor {
	return &MetadataExtractor{client: client}
}

// Metadata fetches the record of ref. A 404 is a soft miss.
func (x *MetadataExtractor) Metadata(ctx context.Context, e era.Era, ref bill.Reference) (bill.Metadata, error) {
	url := e.DetailURL(ref.Number)
	resp, err := x.client.do(ctx, http.MethodGet, url, x.client.http.R())
	if err != nil {
		return bill.Metadata{}, fmt.Errorf("detail %s: %w", ref.ID(), err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		x.client.logger.Warn("bill not found; using list data",
			zap.String("bill_id", ref.ID()),
			zap.String("url", url),
		)
		return bill.FromReference(ref), fmt.Errorf("detail %s: status 404: %w", ref.ID(), crawler.ErrSoftMiss)
	}
	data, err := decodeEnvelope(resp)
	if err != nil {
		return bill.Metadata{}, fmt.Errorf("detail %s: %w", ref.ID(), err)
	}
	var payload detailPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return bill.Metadata{}, fmt.Errorf("detail %s: decode: %w: %w", ref.ID(), crawler.ErrTransientFetch, err)
	}
	return payload.toMetadata(e, ref), nil
}

func (p detailPayload) toMetadata(e era.Era, ref bill.Reference) bill.Metadata {
	g := p.General
	m := bill.Metadata{
		Period:             ref.Period,
		Number:             ref.Number,
		EraCode:            strings.TrimSpace(g.EraCode),
		Title:              g.Title,
		Status:             g.Status,
		PresentedOn:        ref.PresentedOn,
		Legislature:        g.Legislature,
		Proponent:          g.Proponent,
		Summary:            g.Summary,
		ParliamentaryGroup: g.ParliamentaryGroup,
		RecordURL:          ref.URL,
	}
	if g.ID != nil && *g.ID != 0 {
		m.Number = int(*g.ID)
	}
	if d, err := bill.ParseISOPrefix(g.Presented); err == nil {
		m.PresentedOn = d
	}
	if m.RecordURL == "" {
		m.RecordURL = e.RecordURL(m.Number)
	}

	var extraAuthors, coAuthors []bill.Legislator
	for _, s := range p.Signers {
		l := bill.Legislator{Name: s.Name, DNI: s.DNI, Sex: s.Sex, ProfileURL: s.Profile}
		switch int(s.Role) {
		case roleAuthor:
			if m.Author == nil {
				author := l
				m.Author = &author
				continue
			}
			extraAuthors = bill.AppendUnique(extraAuthors, l)
		case roleCoAuthor:
			coAuthors = bill.AppendUnique(coAuthors, l)
		case roleAdherent:
			m.Adherents = bill.AppendUnique(m.Adherents, l)
		}
	}
	m.CoAuthors = bill.AppendUnique(extraAuthors, coAuthors...)

	for _, t := range p.Tracking {
		d, err := bill.ParseISOPrefix(t.Date)
		if err != nil {
			continue
		}
		m.Tracking = bill.AppendUnique(m.Tracking, bill.TrackingEvent{
			Date:      d,
			Detail:    t.Detail,
			Status:    t.Status,
			Committee: t.Committee,
		})
	}

	for _, c := range p.Committee {
		m.Committees = bill.AppendUnique(m.Committees, bill.Committee{ID: int(c.ID), Name: c.Name})
		m.CurrentCommittee = c.Name
	}

	for _, a := range p.Grouped {
		token, _, _ := strings.Cut(a.Code, "/")
		if token = strings.TrimSpace(token); token != "" {
			m.GroupedInitiatives = bill.AppendUnique(m.GroupedInitiatives, token)
		}
	}
	return m
}
