package query

import (
	"github.com/duynguyendang/outgassing/pkg/compliance"
	"github.com/duynguyendang/outgassing/pkg/dataset"
)

// NameQuery asks which materials resembling Material meet the limits.
// Nil pointers and a zero Limit select the engine defaults.
type NameQuery struct {
	Material       string
	MaxTML         *float64
	MaxCVCM        *float64
	Limit          int
	CompliantOnly  *bool
	IncludeDetails *bool
}

// ApplicationQuery asks which materials used for Application meet the limits.
type ApplicationQuery struct {
	Application    string
	MaxTML         *float64
	MaxCVCM        *float64
	IncludeDetails *bool
}

// MaterialDetails are the verbose-only fields of a result entry.
type MaterialDetails struct {
	Manufacturer *string  `json:"manufacturer"`
	WVR          *float64 `json:"wvr"`
}

// MaterialResult is one enriched record in a search result.
type MaterialResult struct {
	SampleMaterial string   `json:"sample_material"`
	ID             string   `json:"id"`
	MatchScore     *float64 `json:"match_score,omitempty"`
	TML            float64  `json:"tml"`
	CVCM           float64  `json:"cvcm"`
	AdjustedTML    float64  `json:"adjusted_tml"`
	TMLPass        bool     `json:"tml_pass"`
	CVCMPass       bool     `json:"cvcm_pass"`
	MaterialUsage  *string  `json:"material_usage"`
	// Nil unless details were requested; its fields are then omitted.
	*MaterialDetails
}

// NameSearchResult is the answer to a NameQuery.
type NameSearchResult struct {
	Query           string            `json:"query"`
	Limits          compliance.Limits `json:"limits"`
	MatchThreshold  *float64          `json:"match_threshold"`
	CompliantOnly   bool              `json:"compliant_only"`
	Limit           int               `json:"limit"`
	TotalMatched    int               `json:"total_matched"`
	TotalCompliant  int               `json:"total_compliant"`
	ResultsReturned int               `json:"results_returned"`
	Truncated       bool              `json:"truncated"`
	Message         string            `json:"message,omitempty"`
	Results         []MaterialResult  `json:"results"`
}

// ApplicationSearchResult is the answer to an ApplicationQuery. Results
// only ever hold compliant records.
type ApplicationSearchResult struct {
	Query           string                     `json:"query"`
	Limits          compliance.Limits          `json:"limits"`
	TotalMatched    int                        `json:"total_matched"`
	TotalCompliant  int                        `json:"total_compliant"`
	ResultsReturned int                        `json:"results_returned"`
	Message         string                     `json:"message,omitempty"`
	TopApplications []dataset.ApplicationCount `json:"top_applications,omitempty"`
	Results         []MaterialResult           `json:"results"`
}

// LookupResult is the answer to a lookup by id. A missing id is reported
// with Found false, not as an error.
type LookupResult struct {
	MaterialID string                  `json:"material_id"`
	Found      bool                    `json:"found"`
	Message    string                  `json:"message,omitempty"`
	Material   *dataset.MaterialRecord `json:"material"`
}

// ApplicationsResult enumerates the distinct material usage values.
type ApplicationsResult struct {
	TotalApplications int      `json:"total_applications"`
	Applications      []string `json:"applications"`
}

// Summary describes the loaded dataset.
type Summary struct {
	TotalRecords      int                        `json:"total_records"`
	DistinctMaterials int                        `json:"distinct_materials"`
	TotalApplications int                        `json:"total_applications"`
	TopApplications   []dataset.ApplicationCount `json:"top_applications"`
	MatchThreshold    *float64                   `json:"match_threshold"`
}
