package era

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillID(t *testing.T) {
	t.Parallel()
	p := Period{From: 2011, To: 2016}
	assert.Equal(t, "2011-2016-000042", p.BillID(42))
	assert.Equal(t, "2011-2016-123456", p.BillID(123456))
	assert.Equal(t, "2011-2016-1234567", p.BillID(1234567))
}

func TestGroupedID(t *testing.T) {
	t.Parallel()
	p := Period{From: 2016, To: 2021}
	cases := map[string]string{
		"1234":    "2016-2021-01234",
		" 1234 ":  "2016-2021-01234",
		"12345":   "2016-2021-12345",
		"123":     "2016-2021-123",
		"0001234": "2016-2021-0001234",
	}
	for in, want := range cases {
		assert.Equal(t, want, p.GroupedID(in), in)
	}
}

func TestFileNames(t *testing.T) {
	t.Parallel()
	p := Period{From: 1995, To: 2000}
	assert.Equal(t, "proyectos-ley-1995-2000.json", p.CacheName())
	assert.Equal(t, "proyectos-ley-1995-2000.db", p.DatabaseName())
}

func TestTable(t *testing.T) {
	t.Parallel()
	table := Table(DefaultSources())
	require.Len(t, table, 7)

	first := table[0]
	assert.Equal(t, AdapterHTML, first.Adapter)
	assert.Equal(t, 30, first.PageSize)
	assert.Equal(t,
		"https://www2.congreso.gob.pe/Sicr/TraDocEstProc/CLProLey1995.nsf/Local%20Por%20Numero?OpenView&Start=31",
		first.PageURL(31))
	assert.Contains(t, table[1].ListURL, "CLProLey2000.nsf/Por%20Numero")

	last := table[6]
	assert.Equal(t, AdapterREST, last.Adapter)
	assert.False(t, last.Paged())
	assert.Equal(t, "https://wb2server.congreso.gob.pe/spley-portal-service/expediente/2021/77", last.DetailURL(77))
	assert.Equal(t, "https://wb2server.congreso.gob.pe/spley-portal/#/expediente/2021/77", last.RecordURL(77))

	for i := 1; i < len(table); i++ {
		assert.Less(t, table[i-1].From, table[i].From)
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()
	table := Table(DefaultSources())

	all, err := Select(table, nil)
	require.NoError(t, err)
	assert.Len(t, all, len(table))

	some, err := Select(table, []string{"2011-2016", "2021", "2011"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, 2011, some[0].From)
	assert.Equal(t, 2021, some[1].From)

	_, err = Select(table, []string{"1990-1995"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1990-1995")
}
