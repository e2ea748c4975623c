package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/outgassing/internal/manager"
	"github.com/duynguyendang/outgassing/pkg/dataset"
	"github.com/duynguyendang/outgassing/pkg/query"
)

const sampleCSV = "../dataset/testdata/outgassing_sample.csv"

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestServer(t *testing.T, source dataset.Source) *Server {
	t.Helper()
	cfg, err := query.Profile(query.ProfileStandard)
	require.NoError(t, err)
	mgr := manager.NewDatasetManager(source)
	return NewServer(query.NewEngine(mgr, cfg), mgr)
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", target, nil)
	srv.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

type brokenSource struct{}

func (brokenSource) Load(context.Context) (*dataset.Dataset, error) {
	return nil, errors.New("disk on fire")
}

func TestHealthCheck(t *testing.T) {
	srv := setupTestServer(t, dataset.FileSource{Path: sampleCSV})

	w := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["loaded"])
	assert.EqualValues(t, 7, body["records"])

	_, err := uuid.Parse(w.Header().Get(requestIDHeader))
	assert.NoError(t, err)
}

func TestHealthCheckFailedLoad(t *testing.T) {
	srv := setupTestServer(t, brokenSource{})

	for range 2 {
		w := get(t, srv, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decode(t, w)
		assert.Equal(t, "dataset_unavailable", body["error"])
		assert.Contains(t, body["message"], "disk on fire")
	}

	w := get(t, srv, "/v1/materials?q=epoxy")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := setupTestServer(t, dataset.FileSource{Path: sampleCSV})
	id := uuid.NewString()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	req.Header.Set(requestIDHeader, id)
	srv.router.ServeHTTP(w, req)

	assert.Equal(t, id, w.Header().Get(requestIDHeader))
}

func TestSearchMaterials(t *testing.T) {
	srv := setupTestServer(t, dataset.FileSource{Path: sampleCSV})

	w := get(t, srv, "/v1/materials?q=epoxy&details=true")
	require.Equal(t, http.StatusOK, w.Code)

	var res query.NameSearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2, res.TotalMatched)
	assert.Equal(t, 1, res.TotalCompliant)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "GSC10001", res.Results[0].ID)
	assert.InDelta(t, 1.2, res.Results[0].AdjustedTML, 1e-9)
	assert.False(t, res.Results[0].TMLPass)
	require.NotNil(t, res.Results[0].MaterialDetails)
	assert.Equal(t, "ACME ADHESIVES", *res.Results[0].Manufacturer)

	w = get(t, srv, "/v1/materials?q=epoxy&compliant_only=true&max_tml=0.5")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Empty(t, res.Results)
	assert.Contains(t, res.Message, "none meet max_tml=0.5")
}

func TestSearchMaterialsInvalidInput(t *testing.T) {
	srv := setupTestServer(t, dataset.FileSource{Path: sampleCSV})

	tests := []struct {
		name   string
		target string
	}{
		{"missing q", "/v1/materials"},
		{"malformed max_tml", "/v1/materials?q=epoxy&max_tml=abc"},
		{"nan max_cvcm", "/v1/materials?q=epoxy&max_cvcm=NaN"},
		{"malformed limit", "/v1/materials?q=epoxy&limit=ten"},
		{"negative limit", "/v1/materials?q=epoxy&limit=-3"},
		{"malformed flag", "/v1/materials?q=epoxy&compliant_only=maybe"},
		{"application without q", "/v1/applications/search"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, srv, tt.target)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_input", decode(t, w)["error"])
		})
	}
}

func TestGetMaterial(t *testing.T) {
	srv := setupTestServer(t, dataset.FileSource{Path: sampleCSV})

	w := get(t, srv, "/v1/materials/GSC10003")
	require.Equal(t, http.StatusOK, w.Code)
	var res query.LookupResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Found)
	assert.Equal(t, "KAPTON TAPE 5413", res.Material.SampleMaterial)

	w = get(t, srv, "/v1/materials/X1")
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.Equal(t, "not_found", body["error"])
	assert.Equal(t, "Material with ID 'X1' not found in the database.", body["message"])
}

func TestApplications(t *testing.T) {
	srv := setupTestServer(t, dataset.FileSource{Path: sampleCSV})

	w := get(t, srv, "/v1/applications")
	require.Equal(t, http.StatusOK, w.Code)
	var res query.ApplicationsResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, []string{"ADHESIVE", "TAPE", "POTTING", "COATING"}, res.Applications)
}

func TestSearchApplication(t *testing.T) {
	srv := setupTestServer(t, dataset.FileSource{Path: sampleCSV})

	w := get(t, srv, "/v1/applications/search?q=adhesive")
	require.Equal(t, http.StatusOK, w.Code)
	var res query.ApplicationSearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 3, res.TotalMatched)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "GSC10007", res.Results[0].ID)
	assert.Equal(t, "GSC10002", res.Results[1].ID)

	w = get(t, srv, "/v1/applications/search?q=film")
	require.Equal(t, http.StatusOK, w.Code)
	res = query.ApplicationSearchResult{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Empty(t, res.Results)
	require.NotEmpty(t, res.TopApplications)
	assert.Equal(t, "ADHESIVE", res.TopApplications[0].Application)
}

func TestSummary(t *testing.T) {
	srv := setupTestServer(t, dataset.FileSource{Path: sampleCSV})

	w := get(t, srv, "/v1/summary")
	require.Equal(t, http.StatusOK, w.Code)
	var res query.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 7, res.TotalRecords)
	assert.Equal(t, 6, res.DistinctMaterials)
	require.NotNil(t, res.MatchThreshold)
	assert.Equal(t, query.StandardThreshold, *res.MatchThreshold)
}
