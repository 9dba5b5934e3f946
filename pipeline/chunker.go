package pipeline

import "strings"

// terminatorWindow bounds the backward search for a sentence terminator.
const terminatorWindow = 100

// ChunkText splits text into ordered segments of at most maxSize characters,
// with adjacent segments overlapping by up to overlap characters. Cuts prefer
// sentence boundaries, then word boundaries, then a raw cut at maxSize.
//
// When overlap >= maxSize the advance guard forces the next window to start at
// the previous end, silently degrading to zero overlap; termination is
// guaranteed for every input.
func ChunkText(text string, maxSize, overlap int) []string {
	if maxSize <= 0 {
		return nil
	}
	if len(text) <= maxSize {
		return []string{text}
	}

	var segments []string
	start := 0
	for start < len(text) {
		end := start + maxSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, start, end)
		}

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			segments = append(segments, piece)
		}

		next := end - overlap
		if next <= start {
			// Forward progress: never re-chunk the same window.
			next = end
		}
		start = next
	}
	return segments
}

// cutPoint searches backward from end for a sentence terminator within the
// last terminatorWindow characters, then for whitespace anywhere in the
// window, and falls back to the raw maxSize cut.
func cutPoint(text string, start, end int) int {
	limit := end - terminatorWindow
	if limit < start {
		limit = start
	}
	for i := end - 1; i >= limit; i-- {
		switch text[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	for i := end - 1; i > start; i-- {
		if text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r' {
			return i
		}
	}
	return end
}
