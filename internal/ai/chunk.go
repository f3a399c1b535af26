package ai

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 64
)

// chunkText splits text into overlapping chunks by rune count.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 2
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
		i += size - overlap
	}
	return chunks
}
