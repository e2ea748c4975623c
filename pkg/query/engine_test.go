package query

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/outgassing/internal/manager"
	apperrors "github.com/duynguyendang/outgassing/pkg/common/errors"
	"github.com/duynguyendang/outgassing/pkg/dataset"
)

func str(s string) *string    { return &s }
func num(v float64) *float64 { return &v }
func flag(b bool) *bool       { return &b }

func fixture(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New([]dataset.MaterialRecord{
		{ID: "EP1", SampleMaterial: "EPOXY 123", Manufacturer: str("ACME"), TML: 1.5, CVCM: 0.05, WVR: num(0.3), MaterialUsage: str("ADHESIVE")},
		{ID: "EP2", SampleMaterial: "EPOXY 123", Manufacturer: str("ACME"), TML: 0.62, CVCM: 0.01, MaterialUsage: str("ADHESIVE")},
		{ID: "EP3", SampleMaterial: "EPOXY", TML: 0.4, CVCM: 0.2, MaterialUsage: str("Adhesive, structural")},
		{ID: "KT1", SampleMaterial: "KAPTON TAPE 5413", Manufacturer: str("3M"), TML: 0.95, CVCM: 0.02, WVR: num(0.4), MaterialUsage: str("INSULATION")},
		{ID: "RTV", SampleMaterial: "RTV 566 SILICONE", TML: 0.25, CVCM: 0.03, WVR: num(0.05), MaterialUsage: str("POTTING")},
		{ID: "DL", SampleMaterial: "DELRIN 500", TML: 0.33, CVCM: 0, WVR: num(0.2)},
		{ID: "SW", SampleMaterial: "SCOTCH-WELD 2216", Manufacturer: str("3M"), TML: 0.94, CVCM: 0.04, WVR: num(0.39), MaterialUsage: str("ADHESIVE")},
	})
	require.NoError(t, err)
	return ds
}

func newEngine(t *testing.T, profile string, mutate ...func(*Config)) *Engine {
	t.Helper()
	cfg, err := Profile(profile)
	require.NoError(t, err)
	for _, m := range mutate {
		m(&cfg)
	}
	return NewEngine(manager.Static(fixture(t)), cfg)
}

func ids(results []MaterialResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestProfile(t *testing.T) {
	raw, err := Profile("raw")
	require.NoError(t, err)
	assert.Nil(t, raw.MatchThreshold)
	assert.Equal(t, DefaultLimit, raw.DefaultLimit)

	std, err := Profile("standard")
	require.NoError(t, err)
	require.NotNil(t, std.MatchThreshold)
	assert.Equal(t, StandardThreshold, *std.MatchThreshold)

	strict, err := Profile(" STRICT ")
	require.NoError(t, err)
	require.NotNil(t, strict.MatchThreshold)
	assert.Equal(t, StrictThreshold, *strict.MatchThreshold)

	_, err = Profile("lenient")
	assert.Error(t, err)
}

func TestSearchByName_ScenarioA(t *testing.T) {
	e := newEngine(t, ProfileStandard)

	res, err := e.SearchByName(context.Background(), NameQuery{Material: "Epoxy", MaxTML: num(1.0)})
	require.NoError(t, err)

	var ep1 *MaterialResult
	for i := range res.Results {
		if res.Results[i].ID == "EP1" {
			ep1 = &res.Results[i]
		}
	}
	require.NotNil(t, ep1)
	assert.InDelta(t, 1.2, ep1.AdjustedTML, 1e-9)
	assert.False(t, ep1.TMLPass)
	assert.True(t, ep1.CVCMPass)
	require.NotNil(t, ep1.MatchScore)
	assert.InDelta(t, 90, *ep1.MatchScore, 1e-9)
}

func TestSearchByName_Profiles(t *testing.T) {
	ctx := context.Background()

	t.Run("raw returns top-k names regardless of quality", func(t *testing.T) {
		res, err := newEngine(t, ProfileRaw).SearchByName(ctx, NameQuery{Material: "Epoxy"})
		require.NoError(t, err)
		assert.Nil(t, res.MatchThreshold)
		assert.Equal(t, 7, res.TotalMatched)
		assert.Equal(t, []string{"EP3", "EP1", "EP2"}, ids(res.Results[:3]))
	})

	t.Run("standard keeps scores above 82", func(t *testing.T) {
		res, err := newEngine(t, ProfileStandard).SearchByName(ctx, NameQuery{Material: "Epoxy"})
		require.NoError(t, err)
		assert.Equal(t, 3, res.TotalMatched)
		assert.Equal(t, 1, res.TotalCompliant)
		assert.Equal(t, []string{"EP3", "EP1", "EP2"}, ids(res.Results))
		assert.False(t, res.Truncated)
		assert.Empty(t, res.Message)
	})

	t.Run("strict keeps scores above 90", func(t *testing.T) {
		res, err := newEngine(t, ProfileStrict).SearchByName(ctx, NameQuery{Material: "Epoxy"})
		require.NoError(t, err)
		assert.Equal(t, []string{"EP3"}, ids(res.Results))
		assert.InDelta(t, 100, *res.Results[0].MatchScore, 1e-9)
	})
}

func TestSearchByName_CompliantOnly(t *testing.T) {
	ctx := context.Background()

	res, err := newEngine(t, ProfileStandard).SearchByName(ctx, NameQuery{Material: "Epoxy", CompliantOnly: flag(true)})
	require.NoError(t, err)
	assert.True(t, res.CompliantOnly)
	assert.Equal(t, 3, res.TotalMatched)
	assert.Equal(t, 1, res.TotalCompliant)
	assert.Equal(t, []string{"EP2"}, ids(res.Results))

	t.Run("matched but none compliant", func(t *testing.T) {
		res, err := newEngine(t, ProfileStrict).SearchByName(ctx, NameQuery{Material: "Epoxy", CompliantOnly: flag(true)})
		require.NoError(t, err)
		assert.Empty(t, res.Results)
		assert.Equal(t, 1, res.TotalMatched)
		assert.Zero(t, res.TotalCompliant)
		assert.Contains(t, res.Message, "none meet max_tml=1 and max_cvcm=0.1")
	})

	t.Run("config default applies when query is silent", func(t *testing.T) {
		e := newEngine(t, ProfileStandard, func(c *Config) { c.DefaultCompliantOnly = true })
		res, err := e.SearchByName(ctx, NameQuery{Material: "Epoxy"})
		require.NoError(t, err)
		assert.Equal(t, []string{"EP2"}, ids(res.Results))

		res, err = e.SearchByName(ctx, NameQuery{Material: "Epoxy", CompliantOnly: flag(false)})
		require.NoError(t, err)
		assert.Len(t, res.Results, 3)
	})
}

func TestSearchByName_NoMatch(t *testing.T) {
	res, err := newEngine(t, ProfileStandard).SearchByName(context.Background(), NameQuery{Material: "zzqqxxjj"})
	require.NoError(t, err)
	require.NotNil(t, res.Results)
	assert.Empty(t, res.Results)
	assert.Zero(t, res.TotalMatched)
	assert.Zero(t, res.TotalCompliant)
	assert.Zero(t, res.ResultsReturned)
	assert.Contains(t, res.Message, "No materials matched 'zzqqxxjj'")

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"results":[]`)
}

func TestSearchByName_EmptyDataset(t *testing.T) {
	ds, err := dataset.New(nil)
	require.NoError(t, err)

	res, err := NewEngine(manager.Static(ds), DefaultConfig()).SearchByName(context.Background(), NameQuery{Material: "Epoxy"})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Zero(t, res.TotalMatched)
}

func TestSearchByName_Truncation(t *testing.T) {
	res, err := newEngine(t, ProfileRaw).SearchByName(context.Background(), NameQuery{Material: "Epoxy", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalMatched)
	assert.Equal(t, 2, res.ResultsReturned)
	assert.True(t, res.Truncated)
	assert.Equal(t, []string{"EP3", "EP1"}, ids(res.Results))
	assert.Contains(t, res.Message, "Showing 2 of 3")
}

func TestSearchByName_Properties(t *testing.T) {
	ctx := context.Background()
	queries := []string{"Epoxy", "kapton", "silicone rtv", "delrin", "scotch weld", "tape"}

	for _, profile := range []string{ProfileRaw, ProfileStandard, ProfileStrict} {
		e := newEngine(t, profile)
		for _, q := range queries {
			for _, limit := range []int{1, 2, 5, 10} {
				for _, only := range []bool{false, true} {
					res, err := e.SearchByName(ctx, NameQuery{Material: q, Limit: limit, CompliantOnly: flag(only)})
					require.NoError(t, err)

					assert.LessOrEqual(t, len(res.Results), limit)
					assert.Equal(t, len(res.Results), res.ResultsReturned)
					assert.GreaterOrEqual(t, res.TotalMatched, res.TotalCompliant)
					if only {
						assert.Equal(t, min(res.TotalCompliant, limit), res.ResultsReturned)
					} else {
						assert.Equal(t, min(res.TotalMatched, limit), res.ResultsReturned)
					}
					for i := 1; i < len(res.Results); i++ {
						assert.GreaterOrEqual(t, *res.Results[i-1].MatchScore, *res.Results[i].MatchScore)
					}
					for _, r := range res.Results {
						assert.Equal(t, r.AdjustedTML <= res.Limits.MaxTML, r.TMLPass)
						assert.Equal(t, r.CVCM <= res.Limits.MaxCVCM, r.CVCMPass)
						if only {
							assert.True(t, r.TMLPass && r.CVCMPass)
						}
					}
				}
			}
		}
	}
}

func TestSearchByName_Idempotent(t *testing.T) {
	e := newEngine(t, ProfileRaw)
	q := NameQuery{Material: "epoxy 123", Limit: 5, IncludeDetails: flag(true)}

	first, err := e.SearchByName(context.Background(), q)
	require.NoError(t, err)
	second, err := e.SearchByName(context.Background(), q)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSearchByName_Details(t *testing.T) {
	ctx := context.Background()

	t.Run("omitted by default", func(t *testing.T) {
		res, err := newEngine(t, ProfileStrict).SearchByName(ctx, NameQuery{Material: "delrin 500"})
		require.NoError(t, err)
		require.Len(t, res.Results, 1)
		assert.Nil(t, res.Results[0].MaterialDetails)

		raw, err := json.Marshal(res.Results[0])
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "manufacturer")
		assert.NotContains(t, string(raw), `"wvr"`)
		assert.Contains(t, string(raw), `"material_usage":null`)
	})

	t.Run("included on request with explicit nulls", func(t *testing.T) {
		res, err := newEngine(t, ProfileStrict).SearchByName(ctx, NameQuery{Material: "delrin 500", IncludeDetails: flag(true)})
		require.NoError(t, err)
		require.Len(t, res.Results, 1)
		require.NotNil(t, res.Results[0].MaterialDetails)

		raw, err := json.Marshal(res.Results[0])
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"manufacturer":null`)
		assert.Contains(t, string(raw), `"wvr":0.2`)
	})

	t.Run("config default", func(t *testing.T) {
		e := newEngine(t, ProfileStrict, func(c *Config) { c.IncludeDetails = true })
		res, err := e.SearchByName(ctx, NameQuery{Material: "kapton tape 5413"})
		require.NoError(t, err)
		require.Len(t, res.Results, 1)
		require.NotNil(t, res.Results[0].Manufacturer)
		assert.Equal(t, "3M", *res.Results[0].Manufacturer)
	})
}

func TestSearchByName_InvalidInput(t *testing.T) {
	e := newEngine(t, ProfileRaw)
	tests := []struct {
		name    string
		q       NameQuery
		wantMsg string
	}{
		{"empty material", NameQuery{}, "material is required"},
		{"blank material", NameQuery{Material: "   "}, "material is required"},
		{"punctuation only", NameQuery{Material: "?!"}, "letter or digit"},
		{"nan max_tml", NameQuery{Material: "epoxy", MaxTML: num(math.NaN())}, "max_tml must be a finite number"},
		{"inf max_cvcm", NameQuery{Material: "epoxy", MaxCVCM: num(math.Inf(1))}, "max_cvcm must be a finite number"},
		{"negative limit", NameQuery{Material: "epoxy", Limit: -1}, "limit must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.SearchByName(context.Background(), tt.q)
			assert.Nil(t, res)
			require.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestSearchByApplication(t *testing.T) {
	e := newEngine(t, ProfileRaw)
	res, err := e.SearchByApplication(context.Background(), ApplicationQuery{Application: "adhesive"})
	require.NoError(t, err)

	assert.Equal(t, 4, res.TotalMatched)
	assert.Equal(t, 2, res.TotalCompliant)
	assert.Equal(t, []string{"SW", "EP2"}, ids(res.Results))
	assert.Empty(t, res.TopApplications)
	for i, r := range res.Results {
		assert.Nil(t, r.MatchScore)
		assert.True(t, r.TMLPass)
		assert.True(t, r.CVCMPass)
		if i > 0 {
			assert.LessOrEqual(t, res.Results[i-1].AdjustedTML, r.AdjustedTML)
		}
	}
}

func TestSearchByApplication_TiesKeepDatasetOrder(t *testing.T) {
	ds, err := dataset.New([]dataset.MaterialRecord{
		{ID: "B", SampleMaterial: "B", TML: 0.5, CVCM: 0.01, MaterialUsage: str("tape")},
		{ID: "A", SampleMaterial: "A", TML: 0.5, CVCM: 0.01, MaterialUsage: str("TAPE")},
		{ID: "C", SampleMaterial: "C", TML: 0.7, CVCM: 0.01, WVR: num(0.3), MaterialUsage: str("Tape, pressure sensitive")},
	})
	require.NoError(t, err)

	res, err := NewEngine(manager.Static(ds), DefaultConfig()).SearchByApplication(context.Background(), ApplicationQuery{Application: "Tape"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, ids(res.Results))
}

func TestSearchByApplication_ScenarioC(t *testing.T) {
	e := newEngine(t, ProfileRaw)
	res, err := e.SearchByApplication(context.Background(), ApplicationQuery{Application: "TAPE"})
	require.NoError(t, err)

	assert.Empty(t, res.Results)
	assert.Zero(t, res.TotalMatched)
	assert.Contains(t, res.Message, "No materials found for application 'TAPE'")
	require.NotEmpty(t, res.TopApplications)
	assert.Equal(t, dataset.ApplicationCount{Application: "ADHESIVE", Count: 3}, res.TopApplications[0])
}

func TestSearchByApplication_MatchedButNotCompliant(t *testing.T) {
	e := newEngine(t, ProfileRaw)
	res, err := e.SearchByApplication(context.Background(), ApplicationQuery{Application: "structural"})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Equal(t, 1, res.TotalMatched)
	assert.Contains(t, res.Message, "none meet")
	assert.Empty(t, res.TopApplications)
}

func TestSearchByApplication_CustomLimits(t *testing.T) {
	e := newEngine(t, ProfileRaw)
	res, err := e.SearchByApplication(context.Background(), ApplicationQuery{Application: "adhesive", MaxTML: num(1.5), MaxCVCM: num(0.5)})
	require.NoError(t, err)
	assert.Equal(t, []string{"EP3", "SW", "EP2", "EP1"}, ids(res.Results))
}

func TestSearchByApplication_InvalidInput(t *testing.T) {
	e := newEngine(t, ProfileRaw)
	_, err := e.SearchByApplication(context.Background(), ApplicationQuery{Application: " "})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "application is required")

	_, err = e.SearchByApplication(context.Background(), ApplicationQuery{Application: "tape", MaxTML: num(math.NaN())})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestLookup(t *testing.T) {
	e := newEngine(t, ProfileRaw)
	ctx := context.Background()

	res, err := e.Lookup(ctx, "EP1")
	require.NoError(t, err)
	assert.True(t, res.Found)
	require.NotNil(t, res.Material)
	assert.Equal(t, "EPOXY 123", res.Material.SampleMaterial)
	require.NotNil(t, res.Material.WVR)
	assert.InDelta(t, 0.3, *res.Material.WVR, 1e-12)

	t.Run("scenario B: not found is a result", func(t *testing.T) {
		res, err := e.Lookup(ctx, "X1")
		require.NoError(t, err)
		assert.False(t, res.Found)
		assert.Nil(t, res.Material)
		assert.Equal(t, "Material with ID 'X1' not found in the database.", res.Message)
	})

	t.Run("ids are exact", func(t *testing.T) {
		res, err := e.Lookup(ctx, "ep1")
		require.NoError(t, err)
		assert.False(t, res.Found)
	})

	t.Run("blank id", func(t *testing.T) {
		_, err := e.Lookup(ctx, "")
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestApplicationsAndSummary(t *testing.T) {
	e := newEngine(t, ProfileStandard)
	ctx := context.Background()

	apps, err := e.Applications(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, apps.TotalApplications)
	assert.Equal(t, []string{"ADHESIVE", "Adhesive, structural", "INSULATION", "POTTING"}, apps.Applications)

	sum, err := e.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, sum.TotalRecords)
	assert.Equal(t, 6, sum.DistinctMaterials)
	assert.Equal(t, 4, sum.TotalApplications)
	require.NotNil(t, sum.MatchThreshold)
	assert.Equal(t, StandardThreshold, *sum.MatchThreshold)
}

type failingSource struct{}

func (failingSource) Load(context.Context) (*dataset.Dataset, error) {
	return nil, errors.New("source unreachable")
}

func TestDatasetUnavailable(t *testing.T) {
	e := NewEngine(manager.NewDatasetManager(failingSource{}), DefaultConfig())
	ctx := context.Background()

	_, err := e.SearchByName(ctx, NameQuery{Material: "epoxy"})
	assert.ErrorIs(t, err, apperrors.ErrDatasetUnavailable)
	_, err = e.SearchByApplication(ctx, ApplicationQuery{Application: "tape"})
	assert.ErrorIs(t, err, apperrors.ErrDatasetUnavailable)
	_, err = e.Lookup(ctx, "X1")
	assert.ErrorIs(t, err, apperrors.ErrDatasetUnavailable)
	_, err = e.Applications(ctx)
	assert.ErrorIs(t, err, apperrors.ErrDatasetUnavailable)
	_, err = e.Summary(ctx)
	assert.ErrorIs(t, err, apperrors.ErrDatasetUnavailable)
}
