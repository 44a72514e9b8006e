package ingest

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters, measured in characters.
const (
	DefaultChunkSize    = 4000
	DefaultChunkOverlap = 200
)

// markdownSeparators orders split boundaries from most to least preferred:
// headings first, then horizontal rules and paragraph breaks, down to a
// hard cut when nothing else fits.
var markdownSeparators = []string{
	"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
	"```\n\n",
	"\n\n***\n\n", "\n\n---\n\n", "\n\n___\n\n",
	"\n\n", "\n", " ", "",
}

// Splitter breaks document text into bounded-size overlapping chunks,
// preferring markdown boundaries. Output is deterministic for identical
// input and configuration, and no chunk ever exceeds the configured size.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter creates a markdown-aware splitter. Non-positive sizes fall
// back to the defaults; an overlap that would prevent forward progress is
// clamped to a quarter of the chunk size.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   markdownSeparators,
	}
}

// Split returns the ordered chunk sequence for text. Input that trims to
// the empty string yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.splitRecursive(text, s.separators)
}

func (s *Splitter) splitRecursive(text string, seps []string) []string {
	sep := ""
	var rest []string
	for i, cand := range seps {
		if cand == "" {
			break
		}
		if strings.Contains(text, cand) {
			sep = cand
			rest = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = hardSplit(text, s.chunkSize)
	} else {
		pieces = splitKeepSeparator(text, sep)
	}

	var final []string
	var good []string
	for _, piece := range pieces {
		if utf8.RuneCountInString(piece) <= s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, hardSplit(piece, s.chunkSize)...)
		} else {
			final = append(final, s.splitRecursive(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge packs consecutive small pieces into chunks up to chunkSize,
// carrying roughly chunkOverlap characters of the previous chunk's tail
// into the next one so context survives the boundary.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var window []string
	winLen := 0

	flush := func() {
		if winLen == 0 {
			return
		}
		chunk := strings.TrimSpace(strings.Join(window, ""))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	for _, p := range pieces {
		pl := utf8.RuneCountInString(p)
		if winLen+pl > s.chunkSize && winLen > 0 {
			flush()
			// Shrink the window from the front until the retained tail fits
			// both the overlap budget and the incoming piece.
			for winLen > s.chunkOverlap || (winLen+pl > s.chunkSize && winLen > 0) {
				winLen -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		winLen += pl
	}
	flush()
	return chunks
}

// splitKeepSeparator splits text on sep, leaving the separator attached to
// the front of the piece that follows it.
func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// hardSplit cuts text into rune-bounded pieces of at most size.
func hardSplit(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
