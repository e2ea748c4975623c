// Package query answers material compliance queries against the loaded
// outgassing dataset.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/duynguyendang/outgassing/pkg/compliance"
	"github.com/duynguyendang/outgassing/pkg/dataset"
	"github.com/duynguyendang/outgassing/pkg/fuzzy"
)

// Provider supplies the dataset the engine queries.
type Provider interface {
	Dataset(ctx context.Context) (*dataset.Dataset, error)
}

// Engine is stateless across calls apart from the matcher it builds once
// per dataset. It is safe for concurrent use.
type Engine struct {
	provider Provider
	cfg      Config
	validate *validator.Validate
	logger   *slog.Logger

	mu  sync.RWMutex
	cat *catalog
}

// catalog pairs a dataset with the matcher built over its names.
type catalog struct {
	ds      *dataset.Dataset
	matcher *fuzzy.Matcher
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
	}
}

// NewEngine creates an engine over provider.
func NewEngine(provider Provider, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		cfg:      cfg.withDefaults(),
		validate: newValidator(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective engine configuration.
func (e *Engine) Config() Config {
	return e.cfg.withDefaults()
}

func (e *Engine) catalog(ctx context.Context) (*catalog, error) {
	ds, err := e.provider.Dataset(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	cat := e.cat
	e.mu.RUnlock()
	if cat != nil && cat.ds == ds {
		return cat, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cat != nil && e.cat.ds == ds {
		return e.cat, nil
	}
	e.cat = &catalog{
		ds:      ds,
		matcher: fuzzy.NewMatcher(ds.Vocabulary(), fuzzy.WithCacheSize(e.cfg.MatchCacheSize)),
	}
	e.logger.Debug("matcher built", "records", ds.Len(), "names", e.cat.matcher.Len())
	return e.cat, nil
}

func (e *Engine) limits(maxTML, maxCVCM *float64) compliance.Limits {
	l := compliance.DefaultLimits()
	if maxTML != nil {
		l.MaxTML = *maxTML
	}
	if maxCVCM != nil {
		l.MaxCVCM = *maxCVCM
	}
	return l
}

func (e *Engine) details(flag *bool) bool {
	if flag != nil {
		return *flag
	}
	return e.cfg.IncludeDetails
}

type nameParams struct {
	Material string  `json:"material" validate:"required,nonblank,max=256,searchable"`
	MaxTML   float64 `json:"max_tml" validate:"finite"`
	MaxCVCM  float64 `json:"max_cvcm" validate:"finite"`
	Limit    int     `json:"limit" validate:"gte=1"`
}

type hit struct {
	row     int
	score   float64
	verdict compliance.Verdict
}

// SearchByName fuzzy-matches q.Material against sample material names and
// reports each matched record with its pass/fail flags, best match first.
func (e *Engine) SearchByName(ctx context.Context, q NameQuery) (*NameSearchResult, error) {
	limits := e.limits(q.MaxTML, q.MaxCVCM)
	limit := q.Limit
	if limit == 0 {
		limit = e.cfg.DefaultLimit
	}
	if err := validateStruct(e.validate, nameParams{
		Material: q.Material,
		MaxTML:   limits.MaxTML,
		MaxCVCM:  limits.MaxCVCM,
		Limit:    limit,
	}); err != nil {
		return nil, err
	}
	compliantOnly := e.cfg.DefaultCompliantOnly
	if q.CompliantOnly != nil {
		compliantOnly = *q.CompliantOnly
	}

	cat, err := e.catalog(ctx)
	if err != nil {
		return nil, err
	}

	opts := fuzzy.Options{Threshold: e.cfg.MatchThreshold}
	if opts.Threshold == nil {
		opts.Limit = limit
	}
	candidates := cat.matcher.Extract(q.Material, opts)
	scores := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		scores[c.Name] = c.Score
	}

	res := &NameSearchResult{
		Query:          q.Material,
		Limits:         limits,
		MatchThreshold: e.cfg.MatchThreshold,
		CompliantOnly:  compliantOnly,
		Limit:          limit,
		Results:        []MaterialResult{},
	}

	var hits []hit
	ds := cat.ds
	for i := 0; i < ds.Len(); i++ {
		rec := ds.Record(i)
		score, ok := scores[rec.SampleMaterial]
		if !ok {
			continue
		}
		v := limits.EvaluateAdjusted(ds.AdjustedTML(i), rec.CVCM)
		res.TotalMatched++
		if v.Compliant() {
			res.TotalCompliant++
		} else if compliantOnly {
			continue
		}
		hits = append(hits, hit{row: i, score: score, verdict: v})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})
	if len(hits) > limit {
		hits = hits[:limit]
		res.Truncated = true
	}

	withDetails := e.details(q.IncludeDetails)
	for _, h := range hits {
		score := h.score
		entry := shape(ds, h.row, h.verdict, withDetails)
		entry.MatchScore = &score
		res.Results = append(res.Results, entry)
	}
	res.ResultsReturned = len(res.Results)
	res.Message = nameMessage(res)

	e.logger.Debug("name search",
		"query", q.Material,
		"candidates", len(candidates),
		"matched", res.TotalMatched,
		"compliant", res.TotalCompliant,
		"returned", res.ResultsReturned,
	)
	return res, nil
}

func nameMessage(res *NameSearchResult) string {
	switch {
	case res.TotalMatched == 0:
		msg := fmt.Sprintf("No materials matched '%s'.", res.Query)
		if res.MatchThreshold != nil {
			msg += fmt.Sprintf(" Only matches scoring above %s are reported.", formatFloat(*res.MatchThreshold))
		}
		return msg
	case res.CompliantOnly && res.TotalCompliant == 0:
		return fmt.Sprintf("%d materials matched '%s' but none meet %s.", res.TotalMatched, res.Query, describeLimits(res.Limits))
	case res.Truncated:
		return fmt.Sprintf("Showing %d of %d results; raise limit to see more.", res.ResultsReturned, candidatesBeforeLimit(res))
	}
	return ""
}

func candidatesBeforeLimit(res *NameSearchResult) int {
	if res.CompliantOnly {
		return res.TotalCompliant
	}
	return res.TotalMatched
}

type applicationParams struct {
	Application string  `json:"application" validate:"required,nonblank,max=256"`
	MaxTML      float64 `json:"max_tml" validate:"finite"`
	MaxCVCM     float64 `json:"max_cvcm" validate:"finite"`
}

// SearchByApplication returns the compliant records whose material usage
// contains q.Application, case-insensitively, lowest adjusted TML first.
func (e *Engine) SearchByApplication(ctx context.Context, q ApplicationQuery) (*ApplicationSearchResult, error) {
	limits := e.limits(q.MaxTML, q.MaxCVCM)
	if err := validateStruct(e.validate, applicationParams{
		Application: q.Application,
		MaxTML:      limits.MaxTML,
		MaxCVCM:     limits.MaxCVCM,
	}); err != nil {
		return nil, err
	}

	cat, err := e.catalog(ctx)
	if err != nil {
		return nil, err
	}
	ds := cat.ds

	res := &ApplicationSearchResult{
		Query:   q.Application,
		Limits:  limits,
		Results: []MaterialResult{},
	}

	needle := strings.ToLower(q.Application)
	var hits []hit
	for i := 0; i < ds.Len(); i++ {
		rec := ds.Record(i)
		if rec.MaterialUsage == nil || !strings.Contains(strings.ToLower(*rec.MaterialUsage), needle) {
			continue
		}
		res.TotalMatched++
		v := limits.EvaluateAdjusted(ds.AdjustedTML(i), rec.CVCM)
		if !v.Compliant() {
			continue
		}
		res.TotalCompliant++
		hits = append(hits, hit{row: i, verdict: v})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].verdict.AdjustedTML < hits[j].verdict.AdjustedTML
	})

	withDetails := e.details(q.IncludeDetails)
	for _, h := range hits {
		res.Results = append(res.Results, shape(ds, h.row, h.verdict, withDetails))
	}
	res.ResultsReturned = len(res.Results)

	switch {
	case res.TotalMatched == 0:
		res.Message = fmt.Sprintf("No materials found for application '%s'. See top_applications for common values.", q.Application)
		res.TopApplications = ds.TopApplications(e.cfg.TopApplications)
	case res.TotalCompliant == 0:
		res.Message = fmt.Sprintf("%d materials found for application '%s' but none meet %s.", res.TotalMatched, q.Application, describeLimits(limits))
	}

	e.logger.Debug("application search",
		"query", q.Application,
		"matched", res.TotalMatched,
		"compliant", res.TotalCompliant,
	)
	return res, nil
}

type lookupParams struct {
	MaterialID string `json:"material_id" validate:"required,nonblank"`
}

// Lookup returns the record with the exact id. An unknown id yields a
// result with Found false.
func (e *Engine) Lookup(ctx context.Context, id string) (*LookupResult, error) {
	if err := validateStruct(e.validate, lookupParams{MaterialID: id}); err != nil {
		return nil, err
	}
	cat, err := e.catalog(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := cat.ds.Lookup(id)
	if err != nil {
		return &LookupResult{
			MaterialID: id,
			Message:    fmt.Sprintf("Material with ID '%s' not found in the database.", id),
		}, nil
	}
	return &LookupResult{MaterialID: id, Found: true, Material: &rec}, nil
}

// Applications lists the distinct material usage values in first-seen order.
func (e *Engine) Applications(ctx context.Context) (*ApplicationsResult, error) {
	cat, err := e.catalog(ctx)
	if err != nil {
		return nil, err
	}
	apps := cat.ds.Applications()
	return &ApplicationsResult{TotalApplications: len(apps), Applications: apps}, nil
}

// Summary describes the loaded dataset.
func (e *Engine) Summary(ctx context.Context) (*Summary, error) {
	cat, err := e.catalog(ctx)
	if err != nil {
		return nil, err
	}
	return &Summary{
		TotalRecords:      cat.ds.Len(),
		DistinctMaterials: cat.matcher.Len(),
		TotalApplications: len(cat.ds.Applications()),
		TopApplications:   cat.ds.TopApplications(e.cfg.TopApplications),
		MatchThreshold:    e.cfg.MatchThreshold,
	}, nil
}

func shape(ds *dataset.Dataset, row int, v compliance.Verdict, withDetails bool) MaterialResult {
	rec := ds.Record(row)
	out := MaterialResult{
		SampleMaterial: rec.SampleMaterial,
		ID:             rec.ID,
		TML:            rec.TML,
		CVCM:           rec.CVCM,
		AdjustedTML:    v.AdjustedTML,
		TMLPass:        v.TMLPass,
		CVCMPass:       v.CVCMPass,
		MaterialUsage:  rec.MaterialUsage,
	}
	if withDetails {
		out.MaterialDetails = &MaterialDetails{Manufacturer: rec.Manufacturer, WVR: rec.WVR}
	}
	return out
}

func describeLimits(l compliance.Limits) string {
	return fmt.Sprintf("max_tml=%s and max_cvcm=%s", formatFloat(l.MaxTML), formatFloat(l.MaxCVCM))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
