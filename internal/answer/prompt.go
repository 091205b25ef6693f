package answer

import (
	"strings"

	"github.com/bull/docqa/internal/storage"
)

// NotFoundReply is what the model is told to say when the context does not
// hold the answer.
const NotFoundReply = "I cannot find this information in the provided document"

// SystemPrompt is sent ahead of every grounded prompt.
const SystemPrompt = `You are a precise document analysis assistant. Your role is to:
1. Only use information from the provided context
2. Be accurate and cite sources when possible
3. Admit when information is not available
4. Provide clear, well-structured answers`

const promptHeader = `You are a helpful AI assistant analyzing a document. Use the following context from the document to answer the question accurately and concisely.

Context from document:
`

const promptInstructions = `

Instructions:
- Answer ONLY based on the provided context above
- If the answer is not found in the context, clearly state "` + NotFoundReply + `"
- Be specific and cite relevant parts of the context when appropriate
- Keep your answer clear, concise, and factual
- Do not make up information or use external knowledge

Answer:`

// BuildPrompt places every retrieved chunk, best first and separated by a
// blank line, ahead of the question. With no chunks the context is empty and
// the instructions steer the model to NotFoundReply.
func BuildPrompt(question string, chunks []*storage.ScoredChunk) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(chunk.Content)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString(promptInstructions)
	return b.String()
}
