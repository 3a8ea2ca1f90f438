// Package search provides full-text document search, served by
// Meilisearch when available with a PostgreSQL fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}

// Query describes a search request. UserID scopes results to documents
// the user is a collaborator on.
type Query struct {
	Text   string
	UserID string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// DocumentRecord is the data indexed for a document. CollaboratorIDs
// carries the membership set so hits can be filtered per user.
type DocumentRecord struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Text            string   `json:"text"`
	CollaboratorIDs []string `json:"collaboratorIds"`
}
