package htmlsource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/bill"
	"github.com/openpolitica/proyectos-ley/internal/crawler"
	"github.com/openpolitica/proyectos-ley/internal/era"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (crawler.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return crawler.Page{}, err
	}
	body, ok := f.pages[url]
	if !ok {
		return crawler.Page{}, fmt.Errorf("status 404: %w", crawler.ErrTransientFetch)
	}
	return crawler.Page{URL: url, StatusCode: 200, Body: []byte(body)}, nil
}

func testEra(pageSize int) era.Era {
	return era.Era{
		Period:     era.Period{From: 2011, To: 2016},
		ListURL:    "https://legacy.test/list?Start=",
		DetailBase: "https://legacy.test",
		PageSize:   pageSize,
		Adapter:    era.AdapterHTML,
	}
}

func listRow(number int, modified, presented, status, title string) string {
	return fmt.Sprintf(`<tr valign="top">
<td><a href="/Sicr/doc/%d?OpenDocument">%05d</a></td>
<td><font size="2">%s</font></td>
<td><font size="2">%s</font></td>
<td><font size="2">%s</font></td>
<td><font size="2">%s</font></td>
</tr>`, number, number, modified, presented, status, title)
}

func listPage(rows ...string) string {
	return `<html><body><table cellpadding="5"><tr valign="top"><td>menu</td></tr></table>
<table cellpadding="2"><tr><th>Número</th></tr>` + strings.Join(rows, "\n") + `</table></body></html>`
}

func TestParseListPage(t *testing.T) {
	t.Parallel()
	body := listPage(
		listRow(42, "05/02/2012", "01/09/2012", "PUBLICADO", "LEY  DE PRUEBA"),
		listRow(43, " ", "01/10/2012", "EN COMISION", "OTRA LEY"),
	)

	refs, err := ParseListPage(testEra(2), []byte(body))
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, bill.Reference{
		Period:       era.Period{From: 2011, To: 2016},
		Number:       42,
		LastModified: bill.Date{Year: 2012, Month: time.May, Day: 2},
		PresentedOn:  bill.Date{Year: 2012, Month: time.January, Day: 9},
		Status:       "PUBLICADO",
		Title:        "LEY DE PRUEBA",
		URL:          "https://legacy.test/Sicr/doc/42?OpenDocument",
	}, refs[0])
	assert.True(t, refs[1].LastModified.IsZero())
}

func TestParseListPage_KeepsRowsBeforeBadRow(t *testing.T) {
	t.Parallel()
	bad := `<tr valign="top"><td><a href="/x">abc</a></td><td></td><td></td><td></td><td></td></tr>`
	body := listPage(listRow(1, "", "01/01/2012", "S", "T"), bad, listRow(3, "", "01/01/2012", "S", "T"))

	refs, err := ParseListPage(testEra(30), []byte(body))
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrPageParse)
	require.Len(t, refs, 1)
	assert.Equal(t, 1, refs[0].Number)
}

func TestParseListPage_MissingTable(t *testing.T) {
	t.Parallel()
	_, err := ParseListPage(testEra(30), []byte(`<html><body><p>mantenimiento</p></body></html>`))
	require.ErrorIs(t, err, crawler.ErrPageParse)
}

func TestList_PaginatesUntilShortPage(t *testing.T) {
	t.Parallel()
	e := testEra(2)
	f := &fakeFetcher{pages: map[string]string{
		e.PageURL(1): listPage(listRow(1, "", "01/01/2012", "S", "A"), listRow(2, "", "01/01/2012", "S", "B")),
		e.PageURL(3): listPage(listRow(3, "", "01/01/2012", "S", "C"), listRow(4, "", "01/01/2012", "S", "D")),
		e.PageURL(5): listPage(listRow(5, "", "01/01/2012", "S", "E")),
	}}

	refs, err := NewListExtractor(f, zap.NewNop()).List(context.Background(), e)
	require.NoError(t, err)
	assert.Len(t, refs, 5)
	assert.Equal(t, []string{e.PageURL(1), e.PageURL(3), e.PageURL(5)}, f.calls)
}

func TestList_FullLastPageEndsOnEmptyPage(t *testing.T) {
	t.Parallel()
	e := testEra(1)
	f := &fakeFetcher{pages: map[string]string{
		e.PageURL(1): listPage(listRow(1, "", "01/01/2012", "S", "A")),
		e.PageURL(2): listPage(listRow(2, "", "01/01/2012", "S", "B")),
		e.PageURL(3): listPage(),
	}}

	refs, err := NewListExtractor(f, nil).List(context.Background(), e)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
	assert.Len(t, f.calls, 3)
}

func TestList_StopsWhenSourceIgnoresOffset(t *testing.T) {
	t.Parallel()
	e := testEra(1)
	same := listPage(listRow(1, "", "01/01/2012", "S", "A"))
	f := &fakeFetcher{pages: map[string]string{
		e.PageURL(1): same,
		e.PageURL(2): same,
		e.PageURL(3): same,
	}}

	refs, err := NewListExtractor(f, nil).List(context.Background(), e)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
	assert.Len(t, f.calls, 2)
}

func TestList_ParseFailureKeepsPartialPageAndStops(t *testing.T) {
	t.Parallel()
	e := testEra(3)
	bad := `<tr valign="top"><td>broken</td></tr>`
	f := &fakeFetcher{pages: map[string]string{
		e.PageURL(1): listPage(listRow(1, "", "01/01/2012", "S", "A"), bad, listRow(3, "", "01/01/2012", "S", "C")),
	}}

	refs, err := NewListExtractor(f, nil).List(context.Background(), e)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, 1, refs[0].Number)
}

func TestList_FetchFailureFailsEra(t *testing.T) {
	t.Parallel()
	e := testEra(1)
	f := &fakeFetcher{
		pages: map[string]string{e.PageURL(1): listPage(listRow(1, "", "01/01/2012", "S", "A"))},
		errs:  map[string]error{e.PageURL(2): errors.New("connection reset")},
	}

	refs, err := NewListExtractor(f, nil).List(context.Background(), e)
	require.Error(t, err)
	assert.Nil(t, refs)
	assert.Contains(t, err.Error(), "2011-2016")
}
