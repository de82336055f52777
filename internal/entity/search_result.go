package entity

// SearchResult is one web search hit. It only lives until the URL filter stage.
type SearchResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// SearchOptions narrows a web search.
type SearchOptions struct {
	Country       string
	SearchLang    string
	ExtraSnippets bool
}

// SearchQuery pairs a query string with its options.
type SearchQuery struct {
	Query   string
	Options SearchOptions
}
