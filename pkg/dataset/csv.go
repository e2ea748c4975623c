package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Column names of the source table.
const (
	ColumnID             = "ID"
	ColumnSampleMaterial = "Sample Material"
	ColumnManufacturer   = "MFR"
	ColumnTML            = "TML"
	ColumnCVCM           = "CVCM"
	ColumnWVR            = "WVR"
	ColumnMaterialUsage  = "Material Usage"
)

// RequiredColumns lists the columns every source must provide.
var RequiredColumns = []string{
	ColumnID,
	ColumnSampleMaterial,
	ColumnManufacturer,
	ColumnTML,
	ColumnCVCM,
	ColumnWVR,
	ColumnMaterialUsage,
}

// FileSource loads the dataset from a CSV file.
type FileSource struct {
	Path string
}

// Load reads and parses the file.
func (s FileSource) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(s.Path), err)
	}
	defer f.Close()

	ds, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(s.Path), err)
	}
	slog.Info("dataset loaded", "path", s.Path, "records", ds.Len())
	return ds, nil
}

// ReadCSV parses a header-first CSV stream. Columns are matched by name,
// ignoring case and surrounding whitespace; extra columns are ignored.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var records []MaterialRecord
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}

	return New(records)
}

func mapColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}

	cols := make(map[string]int, len(RequiredColumns))
	var missing []string
	for _, name := range RequiredColumns {
		i, ok := index[strings.ToLower(name)]
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[name] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseRow(row []string, cols map[string]int) (MaterialRecord, error) {
	cell := func(name string) string {
		i := cols[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	tml, err := parseRequiredFloat(cell(ColumnTML), ColumnTML)
	if err != nil {
		return MaterialRecord{}, err
	}
	cvcm, err := parseRequiredFloat(cell(ColumnCVCM), ColumnCVCM)
	if err != nil {
		return MaterialRecord{}, err
	}
	wvr, err := parseOptionalFloat(cell(ColumnWVR), ColumnWVR)
	if err != nil {
		return MaterialRecord{}, err
	}

	return MaterialRecord{
		ID:             cell(ColumnID),
		SampleMaterial: cell(ColumnSampleMaterial),
		Manufacturer:   optionalString(cell(ColumnManufacturer)),
		TML:            tml,
		CVCM:           cvcm,
		WVR:            wvr,
		MaterialUsage:  optionalString(cell(ColumnMaterialUsage)),
	}, nil
}

func parseRequiredFloat(s, column string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is required", column)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", column, err)
	}
	return v, nil
}

func parseOptionalFloat(s, column string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", column, err)
	}
	return &v, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
