package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hyperjump/mentis/internal/models"
)

type querySet struct {
	Queries []string `json:"queries"`
}

// LoadQueries reads a query set of the form {"queries": ["...", ...]}. Blank queries are
// dropped. A missing file, malformed JSON or an empty set is a ConfigError.
func LoadQueries(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ConfigError{Field: "evaluation.queries_path", Err: err}
	}
	var set querySet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, &models.ConfigError{Field: "evaluation.queries_path", Err: fmt.Errorf("malformed query set %s: %w", path, err)}
	}
	queries := make([]string, 0, len(set.Queries))
	for _, q := range set.Queries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return nil, &models.ConfigError{Field: "evaluation.queries_path", Err: fmt.Errorf("query set %s is empty", path)}
	}
	return queries, nil
}
