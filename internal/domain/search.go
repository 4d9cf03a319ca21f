package domain

// Source is a normalized web search reference used for citation.
type Source struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content,omitempty"`
	PublishedDate string `json:"publishedDate,omitempty"`
}

// RawSearchResult is what a search capability returns. References keeps the
// provider's own shape (string, object or array with varying field names);
// it is normalized by the search augmenter.
type RawSearchResult struct {
	Answer     string
	References any
}
