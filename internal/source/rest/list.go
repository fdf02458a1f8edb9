package restsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/bill"
	"github.com/openpolitica/proyectos-ley/internal/crawler"
	"github.com/openpolitica/proyectos-ley/internal/era"
)

type listRequest struct {
	PerParID int `json:"perParId"`
}

type listItem struct {
	Number    flexInt `json:"pleyNum"`
	Presented string  `json:"fecPresentacion"`
	Status    string  `json:"desEstado"`
	Title     string  `json:"titulo"`
}

type listPayload struct {
	Bills []listItem `json:"proyectos"`
}

// ListExtractor issues the single list call of an era.
type ListExtractor struct {
	client *Client
}

// NewListExtractor builds a ListExtractor on client.
func NewListExtractor(client *Client) *ListExtractor {
	return &ListExtractor{client: client}
}

// List posts the era start year and reads every returned bill.
func (x *ListExtractor) List(ctx context.Context, e era.Era) ([]bill.Reference, error) {
	req := x.client.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(listRequest{PerParID: e.From})
	resp, err := x.client.do(ctx, http.MethodPost, e.ListURL, req)
	if err != nil {
		return nil, fmt.Errorf("list era %s: %w", e, err)
	}
	data, err := decodeEnvelope(resp)
	if err != nil {
		return nil, fmt.Errorf("list era %s: %w", e, err)
	}
	items, err := decodeListItems(data)
	if err != nil {
		return nil, fmt.Errorf("list era %s: %w", e, err)
	}

	refs := make([]bill.Reference, 0, len(items))
	for i, item := range items {
		presented, err := bill.ParseISOPrefix(item.Presented)
		if err != nil {
			return nil, fmt.Errorf("list era %s item %d: %w: %w", e, i, crawler.ErrTransientFetch, err)
		}
		number := int(item.Number)
		if number <= 0 {
			return nil, fmt.Errorf("list era %s item %d: missing bill number: %w", e, i, crawler.ErrTransientFetch)
		}
		refs = append(refs, bill.Reference{
			Period:      e.Period,
			Number:      number,
			PresentedOn: presented,
			Status:      item.Status,
			Title:       item.Title,
			URL:         e.RecordURL(number),
		})
	}
	x.client.logger.Info("list extracted", zap.Stringer("era", e.Period), zap.Int("count", len(refs)))
	return bill.UniqueReferences(refs), nil
}

// decodeListItems accepts both a flat array and an object carrying the array
// under "proyectos".
func decodeListItems(data json.RawMessage) ([]listItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("empty data: %w", crawler.ErrTransientFetch)
	}
	if trimmed[0] == '[' {
		var items []listItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode list array: %w: %w", crawler.ErrTransientFetch, err)
		}
		return items, nil
	}
	var payload listPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, fmt.Errorf("decode list object: %w: %w", crawler.ErrTransientFetch, err)
	}
	return payload.Bills, nil
}
