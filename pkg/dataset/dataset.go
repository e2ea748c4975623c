// Package dataset holds the immutable, in-memory outgassing table.
package dataset

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	apperrors "github.com/duynguyendang/outgassing/pkg/common/errors"
	"github.com/duynguyendang/outgassing/pkg/compliance"
)

// MaterialRecord is one row of the outgassing table.
// Optional columns are nil when absent.
type MaterialRecord struct {
	ID             string   `json:"id"`
	SampleMaterial string   `json:"sample_material"`
	Manufacturer   *string  `json:"manufacturer"`
	TML            float64  `json:"tml"`
	CVCM           float64  `json:"cvcm"`
	WVR            *float64 `json:"wvr"`
	MaterialUsage  *string  `json:"material_usage"`
}

// ApplicationCount pairs a material usage value with its row count.
type ApplicationCount struct {
	Application string `json:"application"`
	Count       int    `json:"count"`
}

// Source supplies a dataset. Implementations may read from disk, network
// or memory.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
}

// Dataset is read-only after New returns and safe for concurrent readers.
type Dataset struct {
	records      []MaterialRecord
	adjustedTML  []float64
	byID         map[string]int
	names        []string
	applications []ApplicationCount
}

// New validates records and builds the derived columns and indexes.
func New(records []MaterialRecord) (*Dataset, error) {
	ds := &Dataset{
		records: make([]MaterialRecord, len(records)),
		byID:    make(map[string]int, len(records)),
		names:   make([]string, len(records)),
	}
	copy(ds.records, records)

	tml := make([]float64, len(records))
	wvr := make([]*float64, len(records))
	appIndex := make(map[string]int)

	for i, rec := range ds.records {
		if err := validateRecord(rec); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if prev, ok := ds.byID[rec.ID]; ok {
			return nil, fmt.Errorf("row %d: duplicate id %q (first seen at row %d)", i+1, rec.ID, prev+1)
		}
		ds.byID[rec.ID] = i
		ds.names[i] = rec.SampleMaterial
		tml[i] = rec.TML
		wvr[i] = rec.WVR

		if rec.MaterialUsage != nil {
			usage := *rec.MaterialUsage
			if idx, ok := appIndex[usage]; ok {
				ds.applications[idx].Count++
			} else {
				appIndex[usage] = len(ds.applications)
				ds.applications = append(ds.applications, ApplicationCount{Application: usage, Count: 1})
			}
		}
	}

	adjusted, err := compliance.AdjustAll(tml, wvr)
	if err != nil {
		return nil, err
	}
	ds.adjustedTML = adjusted
	return ds, nil
}

func validateRecord(rec MaterialRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("empty id")
	}
	if strings.TrimSpace(rec.SampleMaterial) == "" {
		return fmt.Errorf("id %q: empty sample material", rec.ID)
	}
	if !finite(rec.TML) {
		return fmt.Errorf("id %q: TML is not a finite number", rec.ID)
	}
	if !finite(rec.CVCM) {
		return fmt.Errorf("id %q: CVCM is not a finite number", rec.ID)
	}
	if rec.WVR != nil && !finite(*rec.WVR) {
		return fmt.Errorf("id %q: WVR is not a finite number", rec.ID)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Record returns the i-th record in dataset order.
func (d *Dataset) Record(i int) MaterialRecord {
	return d.records[i]
}

// AdjustedTML returns the derived adjusted TML of the i-th record.
func (d *Dataset) AdjustedTML(i int) float64 {
	return d.adjustedTML[i]
}

// Lookup finds a record by exact id.
func (d *Dataset) Lookup(id string) (MaterialRecord, error) {
	i, ok := d.byID[id]
	if !ok {
		return MaterialRecord{}, fmt.Errorf("%w: material with ID '%s'", apperrors.ErrNotFound, id)
	}
	return d.records[i], nil
}

// Vocabulary returns every sample material name in dataset order,
// duplicates included.
func (d *Dataset) Vocabulary() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Applications returns the distinct non-missing material usage values in
// first-seen order.
func (d *Dataset) Applications() []string {
	out := make([]string, len(d.applications))
	for i, a := range d.applications {
		out[i] = a.Application
	}
	return out
}

// ApplicationCounts returns usage values with their row counts, first-seen order.
func (d *Dataset) ApplicationCounts() []ApplicationCount {
	out := make([]ApplicationCount, len(d.applications))
	copy(out, d.applications)
	return out
}

// TopApplications returns the n most frequent usage values, ties in
// first-seen order. n <= 0 returns all of them.
func (d *Dataset) TopApplications(n int) []ApplicationCount {
	out := d.ApplicationCounts()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
