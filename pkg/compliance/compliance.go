// Package compliance derives the adjusted TML figure and evaluates outgassing limits.
package compliance

import "fmt"

// Default outgassing limits, in percent.
const (
	DefaultMaxTML  = 1.0
	DefaultMaxCVCM = 0.1
)

// AdjustedTML returns TML corrected for water vapor recovered.
// A nil wvr means the value was not measured, which is distinct from 0.
// The result is not clamped: a negative value is a net mass gain.
func AdjustedTML(tml float64, wvr *float64) float64 {
	if wvr == nil {
		return tml
	}
	return tml - *wvr
}

// AdjustAll applies AdjustedTML row by row.
func AdjustAll(tml []float64, wvr []*float64) ([]float64, error) {
	if len(tml) != len(wvr) {
		return nil, fmt.Errorf("column length mismatch: %d TML values, %d WVR values", len(tml), len(wvr))
	}
	out := make([]float64, len(tml))
	for i := range tml {
		out[i] = AdjustedTML(tml[i], wvr[i])
	}
	return out, nil
}

// Limits holds the caller supplied pass/fail thresholds.
type Limits struct {
	MaxTML  float64 `json:"max_tml"`
	MaxCVCM float64 `json:"max_cvcm"`
}

// DefaultLimits returns the standard 1.0% TML / 0.1% CVCM screening limits.
func DefaultLimits() Limits {
	return Limits{MaxTML: DefaultMaxTML, MaxCVCM: DefaultMaxCVCM}
}

// Verdict is the outcome of evaluating one record against Limits.
type Verdict struct {
	AdjustedTML float64
	TMLPass     bool
	CVCMPass    bool
}

// Compliant reports whether both limits are met.
func (v Verdict) Compliant() bool {
	return v.TMLPass && v.CVCMPass
}

// Evaluate computes the adjusted TML and both pass flags.
func (l Limits) Evaluate(tml, cvcm float64, wvr *float64) Verdict {
	return l.EvaluateAdjusted(AdjustedTML(tml, wvr), cvcm)
}

// EvaluateAdjusted is Evaluate for callers that already hold the adjusted TML.
func (l Limits) EvaluateAdjusted(adjustedTML, cvcm float64) Verdict {
	return Verdict{
		AdjustedTML: adjustedTML,
		TMLPass:     adjustedTML <= l.MaxTML,
		CVCMPass:    cvcm <= l.MaxCVCM,
	}
}
