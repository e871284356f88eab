package memory

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkTarget = 1200
	DefaultChunkMax    = 1600
)

// ChunkOptions configures text chunking for ingestion.
type ChunkOptions struct {
	TargetSize int
	MaxSize    int
}

// Chunk splits text into paragraph-aligned pieces of about TargetSize
// bytes. Paragraphs longer than MaxSize are split on whitespace.
func Chunk(text string, opts ChunkOptions) []string {
	if opts.TargetSize <= 0 {
		opts.TargetSize = DefaultChunkTarget
	}
	if opts.MaxSize < opts.TargetSize {
		opts.MaxSize = opts.TargetSize + opts.TargetSize/3
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= opts.MaxSize {
		return []string{text}
	}

	var out []string
	var accum string
	flush := func() {
		if accum == "" {
			return
		}
		if len(accum) > opts.MaxSize {
			out = append(out, hardSplit(accum, opts.TargetSize)...)
		} else {
			out = append(out, accum)
		}
		accum = ""
	}
	for _, para := range splitParagraphs(text) {
		if accum == "" {
			accum = para
			continue
		}
		if len(accum)+2+len(para) <= opts.TargetSize {
			accum += "\n\n" + para
			continue
		}
		flush()
		accum = para
	}
	flush()
	return out
}

func splitParagraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// hardSplit breaks text at the last space before size, or at size when the
// window has no space.
func hardSplit(text string, size int) []string {
	var out []string
	for len(text) > size {
		cut := strings.LastIndexAny(text[:size], " \n\t")
		if cut <= 0 {
			cut = runeBoundary(text, size)
		}
		if piece := strings.TrimSpace(text[:cut]); piece != "" {
			out = append(out, piece)
		}
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// runeBoundary returns the largest index <= n that starts a rune in s, so
// s[:n] never ends inside a multi-byte character. It returns at least one
// full rune when n is positive.
func runeBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	if n <= 0 {
		return 0
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return cut
}

// Clip collapses whitespace in s and truncates it to at most max bytes on a
// rune boundary, marking the cut with "...".
func Clip(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		return s[:runeBoundary(s, max)] + "..."
	}
	return s
}
