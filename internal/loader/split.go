package loader

import (
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// Split breaks documents into chunks of at most chunkSize characters with the
// given overlap. Metadata is copied onto every chunk.
func Split(docs []schema.Document, chunkSize, overlap int) ([]schema.Document, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(overlap),
	)
	return textsplitter.SplitDocuments(splitter, docs)
}
