package types

// Method records which matcher produced a search result
type Method string

const (
	MethodFuzzy    Method = "fuzzy"
	MethodSemantic Method = "semantic"
)

// SearchResult represents a single ranked match
type SearchResult struct {
	Entity Entity
	Score  float64 // Fuzzy ratio / 100 or cosine similarity
	Method Method
}

// ID returns the matched entity ID
func (sr SearchResult) ID() string {
	return sr.Entity.ID
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Entity.ID == "" {
		return ErrEmptyEntityID
	}

	if sr.Score < 0 || sr.Score > 1 {
		return ErrInvalidScore
	}

	if sr.Method != MethodFuzzy && sr.Method != MethodSemantic {
		return ErrInvalidMethod
	}

	return nil
}
