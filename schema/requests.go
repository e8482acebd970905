package schema

// Documents API.

// CreateDocumentRequest is the body of POST /api/documents.
type CreateDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateDocumentRequest is the body of PUT /api/documents/{id}. Omitted
// fields keep their stored value.
type UpdateDocumentRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// DeleteDocumentResponse confirms a delete.
type DeleteDocumentResponse struct {
	Message string `json:"message"`
}

// Chat API.

// ChatRequest is the body of POST /api/chat/message. DocumentID is null when
// no document is in focus.
type ChatRequest struct {
	Messages   []ChatMessage `json:"messages"`
	DocumentID DocID         `json:"document_id"`
}

// ChatResponse carries the assistant reply.
type ChatResponse struct {
	Message ChatMessage `json:"message"`
}

// Service endpoints.

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RootResponse is returned by GET /.
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
