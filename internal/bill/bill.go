// Package bill defines the normalized bill records shared by every extractor
// and sink. Optional text fields use the empty string for "absent".
package bill

import (
	"github.com/openpolitica/proyectos-ley/internal/era"
)

// Reference is the listing-stage record of a bill. It is comparable, so set
// identity is the full value.
type Reference struct {
	Period       era.Period `json:"period"`
	Number       int        `json:"number"`
	LastModified Date       `json:"last_modified"`
	PresentedOn  Date       `json:"presented_on"`
	Status       string     `json:"status"`
	Title        string     `json:"title"`
	URL          string     `json:"url"`
}

// ID is the relational key of the referenced bill.
func (r Reference) ID() string {
	return r.Period.BillID(r.Number)
}

// Legislator is a signer of a bill.
type Legislator struct {
	Name       string `json:"name"`
	DNI        string `json:"dni,omitempty"`
	Sex        string `json:"sex,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
}

// TrackingEvent is one dated milestone of a bill.
type TrackingEvent struct {
	Date      Date   `json:"date"`
	Detail    string `json:"detail"`
	Status    string `json:"status,omitempty"`
	Committee string `json:"committee,omitempty"`
}

// Committee is a legislative committee. HTML sources only know the name, so
// ID is zero there.
type Committee struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name"`
}

// Metadata is the canonical bill record.
type Metadata struct {
	Period             era.Period      `json:"period"`
	Number             int             `json:"number"`
	EraCode            string          `json:"era_code,omitempty"`
	Title              string          `json:"title"`
	Status             string          `json:"status"`
	PresentedOn        Date            `json:"presented_on"`
	Legislature        string          `json:"legislature,omitempty"`
	Proponent          string          `json:"proponent,omitempty"`
	Summary            string          `json:"summary,omitempty"`
	ParliamentaryGroup string          `json:"parliamentary_group,omitempty"`
	Author             *Legislator     `json:"author,omitempty"`
	CoAuthors          []Legislator    `json:"co_authors,omitempty"`
	Adherents          []Legislator    `json:"adherents,omitempty"`
	Tracking           []TrackingEvent `json:"tracking,omitempty"`
	Committees         []Committee     `json:"committees,omitempty"`
	CurrentCommittee   string          `json:"current_committee,omitempty"`
	RecordURL          string          `json:"record_url,omitempty"`
	GroupedInitiatives []string        `json:"grouped_initiatives,omitempty"`
}

// FromReference builds the minimal record used when the source reports that
// the bill has no detail.
func FromReference(ref Reference) Metadata {
	return Metadata{
		Period:      ref.Period,
		Number:      ref.Number,
		Title:       ref.Title,
		Status:      ref.Status,
		PresentedOn: ref.PresentedOn,
		RecordURL:   ref.URL,
	}
}

// ID is the relational key of the bill.
func (m Metadata) ID() string {
	return m.Period.BillID(m.Number)
}

// Signers is the primary author followed by the co-authors.
func (m Metadata) Signers() []Legislator {
	out := make([]Legislator, 0, len(m.CoAuthors)+1)
	if m.Author != nil {
		out = append(out, *m.Author)
	}
	return AppendUnique(out, m.CoAuthors...)
}

// CommitteeNames lists the committee names in first-seen order.
func (m Metadata) CommitteeNames() []string {
	out := make([]string, 0, len(m.Committees))
	for _, c := range m.Committees {
		out = AppendUnique(out, c.Name)
	}
	return out
}

// Names projects legislators to their names.
func Names(ls []Legislator) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = AppendUnique(out, l.Name)
	}
	return out
}
