package pipeline

import "strings"

const sentenceSeparator = ". "

// ChunkTranscript splits text on sentence boundaries into parts of at most
// size characters. A single sentence longer than size becomes its own part.
func ChunkTranscript(text string, size int) []string {
	text = strings.TrimSpace(text)
	if size <= 0 || len(text) <= size {
		return []string{text}
	}

	var (
		chunks  []string
		current []string
		length  int
	)

	flush := func() {
		chunk := strings.Join(current, sentenceSeparator)
		if !strings.HasSuffix(chunk, ".") {
			chunk += "."
		}
		chunks = append(chunks, chunk)
	}

	for _, sentence := range strings.Split(text, sentenceSeparator) {
		sentenceLength := len(sentence) + len(sentenceSeparator)
		if length+sentenceLength > size && len(current) > 0 {
			flush()
			current = current[:0]
			length = 0
		}
		current = append(current, sentence)
		length += sentenceLength
	}
	if len(current) > 0 {
		flush()
	}

	return chunks
}
