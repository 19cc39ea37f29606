package query

import (
	"fmt"
	"strings"
)

const answerSystemPrompt = `You are a knowledge base assistant. Answer the question using ONLY the provided context documents.

Rules:
- Base every statement on the context. Do not use outside knowledge.
- If the context does not contain enough information to answer, say so explicitly.
- Cite the documents you used by their labels, e.g. "According to Document 2".
- Be concise and factual.`

// buildPrompt renders the ranked sources as a labeled context block. Labels
// follow rank order, so "Document 1" is always the best match; the confidence
// scorer looks for these labels in the answer.
func buildPrompt(question string, sources []Source) (system, user string) {
	var b strings.Builder

	b.WriteString("Context documents:\n\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "Document %d (from %q):\n%s\n\n", i+1, src.Title, src.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(question)

	return answerSystemPrompt, b.String()
}
