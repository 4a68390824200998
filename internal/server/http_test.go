package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcisim/internal/ledger"
	"wcisim/internal/observability"
	"wcisim/internal/sim"
	"wcisim/internal/supply"
)

func testServer(t *testing.T) (*Server, *RunStore) {
	t.Helper()
	store := NewRunStore()
	health := observability.NewHealthChecker()
	health.SetReady(true)
	return NewServer(":0", store, nil, health, zerolog.Nop()), store
}

func storedRun() StoredRun {
	l := ledger.New()
	l.Add(ledger.Key{
		Acct: ledger.AcctGeneral, Juris: ledger.CA, Vintage: 2015,
		DateLevel:   ledger.QuarterNA,
		FirstUnsold: ledger.NeverUnsold,
		LastUnsold:  ledger.NeverUnsold,
	}, 42)

	st := sim.NewState(ledger.CA)
	st.Snapshots = append(st.Snapshots, sim.Snapshot{
		Quarter: ledger.MustQuarter(2015, 4),
		Ledger:  l,
	})
	return StoredRun{
		Result: &sim.Result{
			RunID:  "run-abc",
			States: map[ledger.Jurisdiction]*sim.State{ledger.CA: st},
		},
		Series: []supply.Series{{Jurisdiction: "CA", Points: []supply.Point{{Year: 2015, Bank: 7}}}},
	}
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_ListRuns(t *testing.T) {
	s, store := testServer(t)
	store.Put(storedRun())

	rec := get(t, s, "/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []string `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"run-abc"}, body.Runs)
}

func TestServer_Bank(t *testing.T) {
	s, store := testServer(t)
	store.Put(storedRun())

	rec := get(t, s, "/v1/runs/run-abc/bank")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		RunID  string          `json:"run_id"`
		Series []supply.Series `json:"series"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-abc", body.RunID)
	require.Len(t, body.Series, 1)
	assert.InDelta(t, 7, body.Series[0].Points[0].Bank, 1e-9)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/v1/runs/nope/bank").Code)
}

func TestServer_Snapshot(t *testing.T) {
	s, store := testServer(t)
	store.Put(storedRun())

	rec := get(t, s, "/v1/runs/run-abc/snapshots/2015Q4")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total float64 `json:"total"`
		Rows  []struct {
			Account  string  `json:"account"`
			Vintage  int     `json:"vintage"`
			Quantity float64 `json:"quantity"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 42, body.Total, 1e-9)
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "gen_acct", body.Rows[0].Account)
	assert.Equal(t, 2015, body.Rows[0].Vintage)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/v1/runs/run-abc/snapshots/2016Q1").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/v1/runs/run-abc/snapshots/bogus").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/v1/runs/run-abc/snapshots/2015Q4?jurisdiction=XX").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/v1/runs/run-abc/snapshots/2015Q4?jurisdiction=QC").Code)
}

func TestServer_Health(t *testing.T) {
	s, _ := testServer(t)
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/readyz").Code)
}
