package rag

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeDOCX(t *testing.T, dir, name string, paragraphs ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create docx: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip entry: %v", err)
	}
	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)
	if _, err := w.Write([]byte(body.String())); err != nil {
		t.Fatalf("write docx body: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close docx: %v", err)
	}
	return path
}

func assertRemoved(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected %s to be deleted, stat err=%v", p, err)
		}
	}
}

func TestGetRelevantContextJoinsAndDeletes(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "primeiro documento")
	skipped := writeFile(t, dir, "notes.md", "ignored")
	b := writeDOCX(t, dir, "b.DOCX", "linha um", "linha dois")

	got := NewExtractor(0).GetRelevantContext([]string{a, skipped, b}, "")
	want := "primeiro documento\n\nlinha um\nlinha dois"
	if got != want {
		t.Fatalf("unexpected context:\n%q\nwant\n%q", got, want)
	}
	assertRemoved(t, a, skipped, b)
}

func TestGetRelevantContextSentinel(t *testing.T) {
	dir := t.TempDir()
	md := writeFile(t, dir, "readme.md", "# not supported")

	if got := NewExtractor(0).GetRelevantContext([]string{md}, "q"); got != NoContext {
		t.Fatalf("expected sentinel, got %q", got)
	}
	if got := NewExtractor(0).GetRelevantContext(nil, "q"); got != NoContext {
		t.Fatalf("expected sentinel for no files, got %q", got)
	}
	assertRemoved(t, md)
}

func TestGetRelevantContextSkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "broken.pdf", "this is not a pdf")
	ok := writeFile(t, dir, "ok.txt", "conteúdo válido")

	got := NewExtractor(0).GetRelevantContext([]string{broken, ok}, "")
	if got != "conteúdo válido" {
		t.Fatalf("expected only the readable file, got %q", got)
	}
	assertRemoved(t, broken, ok)
}

func TestReadTextRejectsInvalidUTF8(t *testing.T) {
	path := writeFile(t, t.TempDir(), "latin1.txt", string([]byte{0x61, 0xe9, 0x62}))
	if _, err := ReadText(path); err == nil {
		t.Fatalf("expected error for invalid UTF-8")
	}
}

func TestTokenLimitKeepsRelevantPassages(t *testing.T) {
	dir := t.TempDir()
	filler := strings.Repeat("palavra genérica sem relação ", 50)
	a := writeFile(t, dir, "a.txt", filler)
	b := writeFile(t, dir, "b.txt", "contrato de locação prazo multa rescisão contrato locação")

	e := NewExtractor(20)
	e.ChunkSize = 10
	e.ChunkOverlap = 0
	got := e.GetRelevantContext([]string{a, b}, "qual a multa do contrato de locação?")

	if !strings.Contains(got, "multa rescisão") {
		t.Fatalf("expected the relevant passage to be kept, got %q", got)
	}
	if n := estimateTokens(strings.ReplaceAll(got, "[…]", "")); n > 20 {
		t.Fatalf("expected at most 20 tokens, got %d in %q", n, got)
	}
	assertRemoved(t, a, b)
}

func TestChunkWordsOverlap(t *testing.T) {
	words := strings.Fields("a b c d e f g")
	chunks := ChunkWords(3, words, 3, 1)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].Offset != 2 || strings.Join(chunks[1].Words, " ") != "c d e" {
		t.Fatalf("unexpected second chunk %+v", chunks[1])
	}
	if chunks[2].Doc != 3 || chunks[2].Tokens() != 3 {
		t.Fatalf("unexpected last chunk %+v", chunks[2])
	}
	if ChunkWords(0, words, 0, 0) != nil {
		t.Fatalf("expected nil for zero chunk size")
	}
}

func TestSelectSpansMergesOverlap(t *testing.T) {
	words := strings.Fields("a b c d e f g h")
	ranked := []RetrievedChunk{
		{chunk: chunk{Doc: 0, Offset: 2, Words: words[2:5]}},
		{chunk: chunk{Doc: 0, Offset: 0, Words: words[0:3]}},
		{chunk: chunk{Doc: 0, Offset: 6, Words: words[6:8]}},
	}
	spans := selectSpans(ranked, 6)
	want := []span{{Doc: 0, Start: 0, End: 5}, {Doc: 0, Start: 6, End: 7}}
	if len(spans) != len(want) {
		t.Fatalf("unexpected spans %+v", spans)
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Fatalf("span %d: got %+v want %+v", i, spans[i], want[i])
		}
	}
	if got := formatSpans([][]string{words}, spans); got != "a b c d e\n\n[…] g […]" {
		t.Fatalf("unexpected formatted spans %q", got)
	}
}

func TestScoreChunksOrdersBySimilarity(t *testing.T) {
	chunks := []chunk{
		{Doc: 0, Words: strings.Fields("receita de bolo")},
		{Doc: 1, Words: strings.Fields("cláusula contratual de multa")},
		{Doc: 2, Words: strings.Fields("multa")},
	}
	scored := scoreChunks(chunks, "Multa contratual")
	if scored[0].Doc != 1 {
		t.Fatalf("expected doc 1 first, got %d", scored[0].Doc)
	}
	if scored[len(scored)-1].Doc != 0 || scored[len(scored)-1].Score != 0 {
		t.Fatalf("expected unrelated chunk last with zero score, got %+v", scored[len(scored)-1])
	}
}
