// Package rag extracts reference text from uploaded documents and turns it
// into the context block that prompts are built from.
package rag

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/mwiater/concilium/internal/logging"
)

// NoContext is returned when no document produced any text.
const NoContext = "Nenhum documento de referência foi fornecido ou os formatos não são suportados."

const (
	defaultChunkSize    = 200
	defaultChunkOverlap = 40
)

// Extractor reads uploaded files into a single context string.
type Extractor struct {
	// TokenLimit bounds the context in whitespace tokens. Zero keeps
	// everything.
	TokenLimit   int
	ChunkSize    int
	ChunkOverlap int
	Readers      map[string]ReaderFunc
}

// NewExtractor returns an Extractor with the default readers.
func NewExtractor(tokenLimit int) *Extractor {
	return &Extractor{
		TokenLimit:   tokenLimit,
		ChunkSize:    defaultChunkSize,
		ChunkOverlap: defaultChunkOverlap,
		Readers:      DefaultReaders(),
	}
}

// GetRelevantContext extracts every supported file in paths, deletes all of
// them, and joins the extracted texts with a blank line. Files that fail to
// read are logged and skipped. When nothing was extracted NoContext is
// returned. query ranks document passages when TokenLimit is exceeded.
func (e *Extractor) GetRelevantContext(paths []string, query string) string {
	docs := e.Extract(paths)
	removeAll(paths)

	if len(docs) == 0 {
		return NoContext
	}
	texts := make([]string, len(docs))
	total := 0
	for i, doc := range docs {
		texts[i] = doc.Text
		total += estimateTokens(doc.Text)
	}
	if e.TokenLimit <= 0 || total <= e.TokenLimit {
		return strings.Join(texts, "\n\n")
	}

	logging.LogEvent("[RAG] context of %d tokens exceeds limit %d, selecting passages", total, e.TokenLimit)
	return e.selectRelevant(docs, query)
}

// Extract reads every supported file in paths without deleting anything.
func (e *Extractor) Extract(paths []string) []Document {
	readers := e.Readers
	if readers == nil {
		readers = DefaultReaders()
	}
	var docs []Document
	for _, path := range paths {
		name := filepath.Base(path)
		read, ok := readers[strings.ToLower(filepath.Ext(name))]
		if !ok {
			continue
		}
		text, err := read(path)
		if err != nil {
			logging.LogEvent("[RAG] error loading %q: %v", name, err)
			continue
		}
		docs = append(docs, Document{Name: name, Text: text})
	}
	return docs
}

func (e *Extractor) selectRelevant(docs []Document, query string) string {
	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	docWords := make([][]string, len(docs))
	var chunks []chunk
	for i, doc := range docs {
		docWords[i] = strings.Fields(doc.Text)
		chunks = append(chunks, ChunkWords(i, docWords[i], chunkSize, e.ChunkOverlap)...)
	}

	ranked := scoreChunks(chunks, query)
	spans := selectSpans(ranked, e.TokenLimit)
	if len(spans) == 0 {
		return NoContext
	}
	return formatSpans(docWords, spans)
}

func removeAll(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.LogEvent("[RAG] error deleting %q: %v", path, err)
		}
	}
}
