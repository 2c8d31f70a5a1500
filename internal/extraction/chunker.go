package extraction

// SlidingChunker splits text into windows of at most Size runes, each
// overlapping the previous one by Overlap runes so extraction context is
// not lost on chunk boundaries.
type SlidingChunker struct {
	Size    int
	Overlap int
}

func NewSlidingChunker(size, overlap int) *SlidingChunker {
	if size <= 0 {
		size = 3000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &SlidingChunker{Size: size, Overlap: overlap}
}

func (c *SlidingChunker) Chunk(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return []string{}
	}
	if len(runes) <= c.Size {
		return []string{text}
	}

	step := c.Size - c.Overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + c.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
