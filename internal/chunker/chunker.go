// Package chunker splits extracted document text into bounded, overlapping
// chunks, preferring paragraph, line, sentence and word boundaries in that
// order before falling back to hard cuts.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSize is the maximum chunk length in characters.
	DefaultSize = 1000

	// DefaultOverlap is the approximate number of characters shared by
	// consecutive chunks.
	DefaultOverlap = 200
)

// defaultSeparators are tried in order. The empty separator splits between
// individual characters.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// ErrInvalidParams is returned by New for an unusable size/overlap pair.
var ErrInvalidParams = errors.New("invalid chunking parameters")

// Chunk is a contiguous slice of the source text.
type Chunk struct {
	Index  int    // Position in the document (0, 1, 2...)
	Offset int    // Byte offset of Text within the source text
	Text   string // Exact substring of the source text
}

// End returns the byte offset just past the chunk.
func (c Chunk) End() int {
	return c.Offset + len(c.Text)
}

// Chunker splits text with a fixed size and overlap. It is stateless and safe
// for concurrent use.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// New creates a Chunker. size must be positive and overlap must satisfy
// 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d must be positive", ErrInvalidParams, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidParams, overlap, size)
	}
	return &Chunker{
		size:       size,
		overlap:    overlap,
		separators: defaultSeparators,
	}, nil
}

// Size returns the maximum chunk length in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in characters.
func (c *Chunker) Overlap() int { return c.overlap }

// span is a half-open byte range [start, end) of the source text holding n runes.
type span struct {
	start, end int
	n          int
}

// Split divides text into chunks. The result is deterministic, every chunk is
// at most Size characters, and the chunks cover the text in order with
// consecutive chunks possibly overlapping. Whitespace-only stretches are
// attached to the preceding chunk when it has room and skipped otherwise.
func (c *Chunker) Split(text string) []Chunk {
	if text == "" {
		return nil
	}

	var chunks []Chunk
	for _, s := range c.split(text, 0, len(text), c.separators) {
		if strings.TrimSpace(text[s.start:s.end]) == "" {
			if len(chunks) > 0 {
				c.extend(text, &chunks[len(chunks)-1], s.end)
			}
			continue
		}
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Offset: s.start,
			Text:   text[s.start:s.end],
		})
	}
	return chunks
}

// extend grows last to end if the result still fits.
func (c *Chunker) extend(text string, last *Chunk, end int) {
	if end <= last.End() {
		return
	}
	if utf8.RuneCountInString(text[last.Offset:end]) <= c.size {
		last.Text = text[last.Offset:end]
	}
}

// split handles text[start:end] with the given separator priority list.
func (c *Chunker) split(text string, start, end int, separators []string) []span {
	n := utf8.RuneCountInString(text[start:end])
	if n <= c.size {
		return []span{{start: start, end: end, n: n}}
	}

	sep, rest := pickSeparator(text[start:end], separators)

	var out, good []span
	for _, piece := range cut(text, start, end, sep) {
		if piece.n < c.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			// Only reachable for single characters when size is 1.
			out = append(out, piece)
			continue
		}
		out = append(out, c.split(text, piece.start, piece.end, rest)...)
	}
	if len(good) > 0 {
		out = append(out, c.merge(good)...)
	}
	return out
}

// merge packs contiguous pieces into windows of at most size characters.
// After a window is emitted, pieces are dropped from its front until what
// remains fits within the overlap, and that remainder opens the next window.
func (c *Chunker) merge(pieces []span) []span {
	var out, window []span
	total := 0

	for _, p := range pieces {
		if total+p.n > c.size && len(window) > 0 {
			out = append(out, join(window, total))
			for total > c.overlap || (total+p.n > c.size && total > 0) {
				total -= window[0].n
				window = window[1:]
			}
		}
		window = append(window, p)
		total += p.n
	}
	if len(window) > 0 {
		out = append(out, join(window, total))
	}
	return out
}

func join(window []span, n int) span {
	return span{start: window[0].start, end: window[len(window)-1].end, n: n}
}

// pickSeparator returns the first separator present in s along with the
// separators of lower priority.
func pickSeparator(s string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" || strings.Contains(s, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

// cut splits text[start:end] on sep. The separator stays attached to the end
// of the piece before it, so the pieces concatenate back to the input.
func cut(text string, start, end int, sep string) []span {
	s := text[start:end]
	var out []span

	if sep == "" {
		for i := 0; i < len(s); {
			_, w := utf8.DecodeRuneInString(s[i:])
			out = append(out, span{start: start + i, end: start + i + w, n: 1})
			i += w
		}
		return out
	}

	pos := 0
	for {
		idx := strings.Index(s[pos:], sep)
		if idx < 0 {
			break
		}
		next := pos + idx + len(sep)
		out = append(out, newSpan(text, start+pos, start+next))
		pos = next
	}
	if pos < len(s) {
		out = append(out, newSpan(text, start+pos, end))
	}
	return out
}

func newSpan(text string, start, end int) span {
	return span{start: start, end: end, n: utf8.RuneCountInString(text[start:end])}
}
