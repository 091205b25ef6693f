// Package mcp exposes document ingestion and question answering as MCP tools.
package mcp

import "time"

// IngestDocumentInput defines the input parameters for the ingest_document tool.
// Exactly one of Content, ContentBase64 or GitHub must be set.
type IngestDocumentInput struct {
	// Name is the display name; its extension selects Markdown parsing.
	Name string `json:"name,omitempty" jsonschema:"Display name of the document, e.g. handbook.md"`
	// Content is the document as plain text or Markdown.
	Content string `json:"content,omitempty" jsonschema:"Document text (plain text or Markdown)"`
	// ContentBase64 carries binary documents such as PDFs.
	ContentBase64 string `json:"content_base64,omitempty" jsonschema:"Base64 encoded document bytes, for PDFs"`
	// GitHub locates a file to fetch instead of sending content.
	GitHub string `json:"github,omitempty" jsonschema:"GitHub file to ingest, as owner/repo/path[@ref] or a github.com blob URL"`
}

// DocumentInfo describes an ingested document.
type DocumentInfo struct {
	DocumentID string    `json:"document_id"`
	Name       string    `json:"name"`
	Chunks     int       `json:"chunks"`
	IngestedAt time.Time `json:"ingested_at"`
}

// IngestDocumentOutput contains the new document's id.
type IngestDocumentOutput struct {
	Document DocumentInfo `json:"document"`
}

// AskQuestionInput defines the input parameters for the ask_question tool.
type AskQuestionInput struct {
	DocumentID string `json:"document_id" jsonschema:"The document_id returned by ingest_document"`
	Question   string `json:"question" jsonschema:"The question to answer from the document"`
}

// Citation is one retrieved chunk the answer was grounded on.
type Citation struct {
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// AskQuestionOutput contains the answer and its sources.
type AskQuestionOutput struct {
	Answer    string     `json:"answer"`
	Document  string     `json:"document"`
	Citations []Citation `json:"citations"`
}

// ListDocumentsInput takes no parameters.
type ListDocumentsInput struct{}

// ListDocumentsOutput lists every ingested document, newest first.
type ListDocumentsOutput struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

// DeleteDocumentInput defines the input parameters for the delete_document tool.
type DeleteDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"The document_id to delete"`
}

// DeleteDocumentOutput reports whether a document was removed.
type DeleteDocumentOutput struct {
	DocumentID string `json:"document_id"`
	Deleted    bool   `json:"deleted"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput describes the index and configured models.
type StatusOutput struct {
	Backend         string `json:"backend,omitempty"`
	Collection      string `json:"collection,omitempty"`
	TotalDocs       int    `json:"total_docs"`
	TotalChunks     int    `json:"total_chunks"`
	Dimension       int    `json:"dimension"`
	Metric          string `json:"metric,omitempty"`
	EmbeddingModel  string `json:"embedding_model"`
	GenerationModel string `json:"generation_model"`
	TopK            int    `json:"top_k"`
	// IndexError is set when the index could not be reached.
	IndexError string `json:"index_error,omitempty"`
}
