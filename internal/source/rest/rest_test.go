package restsource

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/bill"
	"github.com/openpolitica/proyectos-ley/internal/crawler"
	"github.com/openpolitica/proyectos-ley/internal/era"
)

func portalEra(srv *httptest.Server) era.Era {
	return era.Era{
		Period:     era.Period{From: 2021, To: 2026},
		ListURL:    srv.URL + "/spley-portal-service/proyecto-ley/lista-con-filtro",
		DetailBase: srv.URL,
		PageSize:   era.FetchOnce,
		Adapter:    era.AdapterREST,
	}
}

func newTestClient() *Client {
	return NewClient(Config{UserAgent: "test-agent", Timeout: 5 * time.Second}, nil, zap.NewNop())
}

func TestList_FlatArray(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-agent", r.UserAgent())
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"perParId":2021}`, string(body))
		_, _ = w.Write([]byte(`{"code":200,"status":"success","data":[
			{"pleyNum":101,"fecPresentacion":"2021-08-20","desEstado":"EN COMISION","titulo":"LEY A"},
			{"pleyNum":"102","fecPresentacion":"2021-08-21","desEstado":"PUBLICADO","titulo":"LEY B"},
			{"pleyNum":101,"fecPresentacion":"2021-08-20","desEstado":"EN COMISION","titulo":"LEY A"}
		]}`))
	}))
	defer srv.Close()
	e := portalEra(srv)

	refs, err := NewListExtractor(newTestClient()).List(context.Background(), e)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, bill.Reference{
		Period:      e.Period,
		Number:      101,
		PresentedOn: bill.Date{Year: 2021, Month: time.August, Day: 20},
		Status:      "EN COMISION",
		Title:       "LEY A",
		URL:         srv.URL + "/spley-portal/#/expediente/2021/101",
	}, refs[0])
	assert.Equal(t, 102, refs[1].Number)
}

func TestList_NestedProyectos(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"status":"success","data":{"rowsTotal":1,"proyectos":[
			{"pleyNum":7,"fecPresentacion":"2022-01-05T05:00:00.000+0000","desEstado":"PRESENTADO","titulo":"LEY C"}
		]}}`))
	}))
	defer srv.Close()

	refs, err := NewListExtractor(newTestClient()).List(context.Background(), portalEra(srv))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, bill.Date{Year: 2022, Month: time.January, Day: 5}, refs[0].PresentedOn)
}

func TestList_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http status", status: http.StatusInternalServerError, body: `oops`},
		{name: "envelope code", status: http.StatusOK, body: `{"code":500,"status":"success","data":[]}`},
		{name: "envelope status", status: http.StatusOK, body: `{"code":200,"status":"error","data":[]}`},
		{name: "malformed json", status: http.StatusOK, body: `{"code":`},
		{name: "bad date", status: http.StatusOK, body: `{"code":200,"status":"success","data":[{"pleyNum":1,"fecPresentacion":"ayer"}]}`},
		{name: "missing number", status: http.StatusOK, body: `{"code":200,"status":"success","data":[{"fecPresentacion":"2021-08-20","titulo":"A"}]}`},
		{name: "null number", status: http.StatusOK, body: `{"code":200,"status":"success","data":[{"pleyNum":1,"fecPresentacion":"2021-08-20"},{"pleyNum":null,"fecPresentacion":"2021-08-21"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			refs, err := NewListExtractor(newTestClient()).List(context.Background(), portalEra(srv))
			require.Error(t, err)
			assert.ErrorIs(t, err, crawler.ErrTransientFetch)
			assert.Nil(t, refs)
		})
	}
}

const detailBody = `{"code":200,"status":"success","data":{
	"general":{"pleyId":101,"proyectoLey":"00101/2021-CR","titulo":"LEY QUE DECLARA","desEstado":"EN COMISION",
		"fecPresentacion":"2021-08-20","desLegis":"Primera Legislatura","desProponente":"Congreso",
		"sumilla":"Declara algo","desGpar":"Perú Libre"},
	"firmantes":[
		{"tipoFirmanteId":1,"nombre":"CASTILLO, ANA","dni":"111","sexo":"F","pagWeb":"https://x/ana"},
		{"tipoFirmanteId":1,"nombre":"QUISPE, LUIS","dni":"222","sexo":"M","pagWeb":null},
		{"tipoFirmanteId":2,"nombre":"ROJAS, EVA","dni":"333","sexo":"F","pagWeb":null},
		{"tipoFirmanteId":3,"nombre":"DIAZ, JOSE","dni":"444","sexo":"M","pagWeb":null},
		{"tipoFirmanteId":9,"nombre":"OTRO","dni":"555","sexo":"M","pagWeb":null}
	],
	"seguimientos":[
		{"fecha":"2021-08-20T05:00:00.000+0000","detalle":"Presentado","desEstado":"PRESENTADO","desComisiones":null},
		{"fecha":"2021-08-23T05:00:00.000+0000","detalle":"Decretado a...","desEstado":"EN COMISION","desComisiones":"Economía"}
	],
	"comisiones":[{"id":5,"nombre":"Economía"},{"id":9,"nombre":"Justicia"}],
	"acumulados":[{"proyectoLey":"0045/2021-CR"},{"proyectoLey":"00120/2021-PE"}]
}}`

func TestMetadata_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/spley-portal-service/expediente/2021/101", r.URL.Path)
		_, _ = w.Write([]byte(detailBody))
	}))
	defer srv.Close()
	e := portalEra(srv)
	ref := bill.Reference{Period: e.Period, Number: 101, URL: e.RecordURL(101), Title: "LIST TITLE"}

	got, err := NewMetadataExtractor(newTestClient()).Metadata(context.Background(), e, ref)
	require.NoError(t, err)

	want := bill.Metadata{
		Period:             e.Period,
		Number:             101,
		EraCode:            "00101/2021-CR",
		Title:              "LEY QUE DECLARA",
		Status:             "EN COMISION",
		PresentedOn:        bill.Date{Year: 2021, Month: time.August, Day: 20},
		Legislature:        "Primera Legislatura",
		Proponent:          "Congreso",
		Summary:            "Declara algo",
		ParliamentaryGroup: "Perú Libre",
		Author:             &bill.Legislator{Name: "CASTILLO, ANA", DNI: "111", Sex: "F", ProfileURL: "https://x/ana"},
		CoAuthors: []bill.Legislator{
			{Name: "QUISPE, LUIS", DNI: "222", Sex: "M"},
			{Name: "ROJAS, EVA", DNI: "333", Sex: "F"},
		},
		Adherents: []bill.Legislator{{Name: "DIAZ, JOSE", DNI: "444", Sex: "M"}},
		Tracking: []bill.TrackingEvent{
			{Date: bill.Date{Year: 2021, Month: time.August, Day: 20}, Detail: "Presentado", Status: "PRESENTADO"},
			{Date: bill.Date{Year: 2021, Month: time.August, Day: 23}, Detail: "Decretado a...", Status: "EN COMISION", Committee: "Economía"},
		},
		Committees:         []bill.Committee{{ID: 5, Name: "Economía"}, {ID: 9, Name: "Justicia"}},
		CurrentCommittee:   "Justicia",
		RecordURL:          srv.URL + "/spley-portal/#/expediente/2021/101",
		GroupedInitiatives: []string{"0045", "00120"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestMetadata_NotFoundIsSoftMiss(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	e := portalEra(srv)
	ref := bill.Reference{Period: e.Period, Number: 3, Title: "T", Status: "S", URL: e.RecordURL(3)}

	got, err := NewMetadataExtractor(newTestClient()).Metadata(context.Background(), e, ref)
	require.Error(t, err)
	assert.True(t, crawler.IsSoftMiss(err))
	assert.False(t, crawler.IsRetryable(err))
	assert.Equal(t, bill.FromReference(ref), got)
}

func TestMetadata_MissingIDAndDateKeepReference(t *testing.T) {
	t.Parallel()
	payload := map[string]any{
		"code":   200,
		"status": "success",
		"data": map[string]any{
			"general": map[string]any{"titulo": "X", "fecPresentacion": ""},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()
	e := portalEra(srv)
	presented := bill.Date{Year: 2021, Month: time.September, Day: 1}
	ref := bill.Reference{Period: e.Period, Number: 77, PresentedOn: presented, URL: e.RecordURL(77)}

	got, err := NewMetadataExtractor(newTestClient()).Metadata(context.Background(), e, ref)
	require.NoError(t, err)
	assert.Equal(t, 77, got.Number)
	assert.Equal(t, presented, got.PresentedOn)
	assert.Nil(t, got.Author)
	assert.Empty(t, got.CoAuthors)
	assert.Empty(t, got.Committees)
}

func TestMetadata_ServerErrorIsRetryable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()
	e := portalEra(srv)

	_, err := NewMetadataExtractor(newTestClient()).Metadata(context.Background(), e, bill.Reference{Period: e.Period, Number: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrTransientFetch)
	assert.True(t, crawler.IsRetryable(err))
}

type countingWaiter struct{ calls int }

func (w *countingWaiter) Wait(context.Context, string) error {
	w.calls++
	return nil
}

func TestClient_UsesWaiter(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"status":"success","data":[]}`))
	}))
	defer srv.Close()
	waiter := &countingWaiter{}

	refs, err := NewListExtractor(NewClient(Config{}, waiter, nil)).List(context.Background(), portalEra(srv))
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Equal(t, 1, waiter.calls)
}
