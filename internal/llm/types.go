package llm

import "fmt"

// ChatRequest is the body POSTed to the answering service.
// SelectedFiles is omitted unless it has at least one entry.
type ChatRequest struct {
	Message       string   `json:"message"`
	SelectedFiles []string `json:"selected_files,omitempty"`
}

// chatResponse mirrors the answering service's reply; every field is optional.
type chatResponse struct {
	Reply           string   `json:"reply"`
	UsedRAG         bool     `json:"used_rag"`
	RetrievedChunks int      `json:"retrieved_chunks"`
	Sources         []string `json:"sources"`
}

// Answer is a reply with fallbacks applied: Reply is never empty and Sources
// is never nil.
type Answer struct {
	Reply           string
	UsedRAG         bool
	RetrievedChunks int
	Sources         []string
}

// APIError represents a non-2xx HTTP response from the answering service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("answer service error (status %d): %s", e.StatusCode, e.Body)
}
