package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/tailscale/hujson"
)

// ============================================================================
// CATALOG FILES: JSONC report definitions
// ============================================================================
// A catalog file adds reports to (or replaces reports in) the built-in
// catalog. Comments and trailing commas are allowed:
//
//	{
//	  // custom report for the platform team
//	  "reports": [
//	    {"type": "team_tickets", "family": "time_bucketed", "filters": [...]},
//	  ],
//	}
// ============================================================================

// ErrInvalidCatalog is returned for catalog files that fail to parse or
// validate.
var ErrInvalidCatalog = errors.New("invalid report catalog")

// Catalog is the on-disk shape of a catalog file.
type Catalog struct {
	Reports []Report `json:"reports" validate:"required,dive"`
}

var catalogValidate = validator.New()

// LoadCatalog reads and validates a JSONC catalog file.
func LoadCatalog(path string) ([]Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and validates catalog bytes.
func ParseCatalog(data []byte) ([]Report, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSONC: %w", ErrInvalidCatalog, err)
	}

	var cat Catalog
	if err := json.Unmarshal(standardized, &cat); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrInvalidCatalog, err)
	}

	if err := catalogValidate.Struct(cat); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	seen := make(map[string]bool, len(cat.Reports))
	for _, rep := range cat.Reports {
		if seen[rep.Type] {
			return nil, fmt.Errorf("%w: duplicate report type %q", ErrInvalidCatalog, rep.Type)
		}
		seen[rep.Type] = true
		if err := checkFilterIDs(rep); err != nil {
			return nil, err
		}
	}
	return cat.Reports, nil
}

func checkFilterIDs(rep Report) error {
	ids := make(map[string]bool, len(rep.Filters))
	for _, d := range rep.Filters {
		if ids[d.ID] {
			return fmt.Errorf("%w: report %q: duplicate filter id %q", ErrInvalidCatalog, rep.Type, d.ID)
		}
		ids[d.ID] = true
	}
	return nil
}
