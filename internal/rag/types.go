package rag

// Document is the extracted text of one uploaded file.
type Document struct {
	Name string
	Text string
}

// chunk is a window of words taken from one document.
type chunk struct {
	Doc    int
	Offset int
	Words  []string
}

// Tokens is the size of the chunk in words.
func (c chunk) Tokens() int { return len(c.Words) }

// RetrievedChunk is a chunk plus its similarity to the query.
type RetrievedChunk struct {
	chunk
	Score float64
}

// span is a half-open word range [Start, End) within one document.
type span struct {
	Doc   int
	Start int
	End   int
}
