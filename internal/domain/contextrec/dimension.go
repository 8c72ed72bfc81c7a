package contextrec

import (
	"fmt"
	"strings"

	"casecontext-backend/internal/errors"
)

// DimensionName names one of the five context dimensions.
type DimensionName string

const (
	DimensionWho   DimensionName = "WHO"
	DimensionWhat  DimensionName = "WHAT"
	DimensionWhere DimensionName = "WHERE"
	DimensionWhen  DimensionName = "WHEN"
	DimensionWhy   DimensionName = "WHY"
)

// CanonicalDimensions lists every dimension in its canonical order. Result
// maps and cache fingerprints always follow this order, never completion
// order.
var CanonicalDimensions = []DimensionName{
	DimensionWho,
	DimensionWhat,
	DimensionWhere,
	DimensionWhen,
	DimensionWhy,
}

// ParseDimension normalizes a dimension name. Input is case-insensitive.
func ParseDimension(name string) (DimensionName, error) {
	d := DimensionName(strings.ToUpper(strings.TrimSpace(name)))
	for _, known := range CanonicalDimensions {
		if d == known {
			return d, nil
		}
	}
	return "", errors.NewValidation(fmt.Sprintf("unknown dimension %q", name))
}

// NormalizeDimensions parses a list of dimension names into a deduplicated
// set in canonical order. The list must be a non-empty subset of the five
// known names.
func NormalizeDimensions(names []string) ([]DimensionName, error) {
	if len(names) == 0 {
		return nil, errors.NewValidation("dimension list must not be empty")
	}
	seen := make(map[DimensionName]bool, len(names))
	for _, name := range names {
		d, err := ParseDimension(name)
		if err != nil {
			return nil, err
		}
		seen[d] = true
	}
	out := make([]DimensionName, 0, len(seen))
	for _, d := range CanonicalDimensions {
		if seen[d] {
			out = append(out, d)
		}
	}
	return out, nil
}

// SufficientThreshold gates both per-dimension sufficiency and overall
// record completeness.
const SufficientThreshold = 0.85

// DimensionData is the payload produced by one analyzer. The Data document
// is opaque to the engine; only the scalar quality fields are interpreted.
type DimensionData struct {
	Data         map[string]any `json:"data"`
	Completeness float64        `json:"completeness"`
	Confidence   float64        `json:"confidence"`
	DataPoints   int            `json:"data_points"`
	Sufficient   bool           `json:"sufficient"`
}

// DimensionResult is the outcome of one requested dimension: either a
// payload or a failure reason. Exactly one of Data and Err is set.
type DimensionResult struct {
	Name DimensionName  `json:"name"`
	Data *DimensionData `json:"data,omitempty"`
	Err  string         `json:"error,omitempty"`
}

// Succeeded reports whether the dimension produced a payload.
func (r DimensionResult) Succeeded() bool {
	return r.Data != nil
}
