package era

import (
	"fmt"
	"strconv"
	"strings"
)

// Default source hosts.
const (
	DefaultLegacyBaseURL = "https://www2.congreso.gob.pe"
	DefaultPortalBaseURL = "https://wb2server.congreso.gob.pe"
)

// Sources holds the hosts the era table is built against.
type Sources struct {
	LegacyBaseURL string
	PortalBaseURL string
}

// DefaultSources points at the public congress hosts.
func DefaultSources() Sources {
	return Sources{LegacyBaseURL: DefaultLegacyBaseURL, PortalBaseURL: DefaultPortalBaseURL}
}

func legacy(src Sources, from, to int, view string, pageSize int) Era {
	return Era{
		Period:     Period{From: from, To: to},
		ListURL:    fmt.Sprintf("%s/Sicr/TraDocEstProc/CLProLey%d.nsf/%s?OpenView&Start=", src.LegacyBaseURL, from, view),
		DetailBase: src.LegacyBaseURL,
		PageSize:   pageSize,
		Adapter:    AdapterHTML,
	}
}

// Table returns every era in chronological order.
func Table(src Sources) []Era {
	const (
		byNumber      = "Por%20Numero"
		localByNumber = "Local%20Por%20Numero"
	)
	return []Era{
		legacy(src, 1995, 2000, localByNumber, 30),
		legacy(src, 2000, 2001, byNumber, 30),
		legacy(src, 2001, 2006, localByNumber, 500),
		legacy(src, 2006, 2011, localByNumber, 500),
		legacy(src, 2011, 2016, localByNumber, 1000),
		legacy(src, 2016, 2021, localByNumber, 500),
		{
			Period:     Period{From: 2021, To: 2026},
			ListURL:    src.PortalBaseURL + "/spley-portal-service/proyecto-ley/lista-con-filtro",
			DetailBase: src.PortalBaseURL,
			PageSize:   FetchOnce,
			Adapter:    AdapterREST,
		},
	}
}

// Parse finds an era by "from-to" or by its starting year.
func Parse(table []Era, name string) (Era, error) {
	name = strings.TrimSpace(name)
	for _, e := range table {
		if name == e.String() {
			return e, nil
		}
		if from, err := strconv.Atoi(name); err == nil && from == e.From {
			return e, nil
		}
	}
	return Era{}, fmt.Errorf("unknown era %q", name)
}

// Select resolves a list of names; an empty list selects the whole table.
func Select(table []Era, names []string) ([]Era, error) {
	if len(names) == 0 {
		return append([]Era(nil), table...), nil
	}
	out := make([]Era, 0, len(names))
	seen := make(map[Period]bool, len(names))
	for _, name := range names {
		e, err := Parse(table, name)
		if err != nil {
			return nil, err
		}
		if seen[e.Period] {
			continue
		}
		seen[e.Period] = true
		out = append(out, e)
	}
	return out, nil
}
