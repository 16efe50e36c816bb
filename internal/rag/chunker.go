package rag

// ChunkWords splits a document's words into overlapping windows. Word
// counts stand in for tokens.
func ChunkWords(doc int, words []string, chunkSize, overlap int) []chunk {
	if chunkSize <= 0 || len(words) == 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	var chunks []chunk
	for i := 0; i < len(words); i += step {
		end := min(i+chunkSize, len(words))
		chunks = append(chunks, chunk{
			Doc:    doc,
			Offset: i,
			Words:  words[i:end],
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
