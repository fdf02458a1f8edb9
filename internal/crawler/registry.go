package crawler

import (
	"fmt"

	"github.com/openpolitica/proyectos-ley/internal/era"
)

// Adapters is the extractor pair serving one source format.
type Adapters struct {
	List     ListExtractor
	Metadata MetadataExtractor
}

// Registry maps an era's adapter selector to its extractor pair.
type Registry map[era.Adapter]Adapters

// For returns the extractors of e.
func (r Registry) For(e era.Era) (Adapters, error) {
	a, ok := r[e.Adapter]
	if !ok || a.List == nil || a.Metadata == nil {
		return Adapters{}, fmt.Errorf("no extractors registered for adapter %q (era %s)", e.Adapter, e)
	}
	return a, nil
}
