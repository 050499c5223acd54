// Package textsplit breaks long model output into transport-sized chunks
// and repairs Markdown spans that a cut would otherwise leave open.
package textsplit

import (
	"strings"
	"unicode"
)

// Split breaks text into chunks of at most maxLen runes. Within each window
// it prefers the last paragraph break, then the last line break, then the
// last space, and hard-cuts only when the window contains none of those.
// Whitespace immediately after a cut point is skipped, so concatenating the
// chunks reproduces the text except for that skipped whitespace. Empty
// chunks are dropped; empty input yields nil.
func Split(text string, maxLen int) []string {
	if text == "" || maxLen <= 0 {
		return nil
	}

	runes := []rune(text)
	var chunks []string

	pos := 0
	for pos < len(runes) {
		end := pos + maxLen
		if end >= len(runes) {
			chunks = append(chunks, string(runes[pos:]))
			break
		}

		splitAt := end
		if i := lastParagraphBreak(runes, pos, end); i > pos {
			splitAt = i + 2
		} else if i := lastRune(runes, pos, end, '\n'); i > pos {
			splitAt = i + 1
		} else if i := lastRune(runes, pos, end, ' '); i > pos {
			splitAt = i + 1
		}

		chunks = append(chunks, string(runes[pos:splitAt]))
		pos = splitAt

		for pos < len(runes) && unicode.IsSpace(runes[pos]) {
			pos++
		}
	}

	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// lastParagraphBreak returns the index of the last "\n\n" that fits entirely
// inside [start, end), or -1.
func lastParagraphBreak(runes []rune, start, end int) int {
	for i := end - 2; i >= start; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// lastRune returns the index of the last occurrence of r in [start, end), or -1.
func lastRune(runes []rune, start, end int, r rune) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// Rebalance closes Markdown spans left open at the end of a chunk. It scans
// left to right tracking an open-delimiter stack over `*`, backtick, `~` and
// the ``` fence, and appends the closing counterparts for whatever remains
// open. Spans are not re-opened in the following chunk; each chunk is valid
// on its own.
func Rebalance(chunk string) string {
	runes := []rune(chunk)
	var stack []string
	var b strings.Builder
	b.Grow(len(chunk) + 8)

	i := 0
	for i < len(runes) {
		if i+3 <= len(runes) && runes[i] == '`' && runes[i+1] == '`' && runes[i+2] == '`' {
			toggle(&stack, "```")
			b.WriteString("```")
			i += 3
			continue
		}
		switch runes[i] {
		case '*', '`', '~':
			toggle(&stack, string(runes[i]))
		}
		b.WriteRune(runes[i])
		i++
	}

	for len(stack) > 0 {
		b.WriteString(stack[len(stack)-1])
		stack = stack[:len(stack)-1]
	}
	return b.String()
}

// toggle closes the delimiter when it matches the top of the stack and opens
// it otherwise.
func toggle(stack *[]string, sym string) {
	s := *stack
	if len(s) > 0 && s[len(s)-1] == sym {
		*stack = s[:len(s)-1]
		return
	}
	*stack = append(s, sym)
}
