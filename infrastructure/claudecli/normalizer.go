package claudecli

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// minContentLength is the shortest filtered output trusted as a reply
const minContentLength = 10

const esc = 0x1b

// chromeMarkers identify status lines the CLI prints around its reply
var chromeMarkers = []string{
	"Loading project",
	"Analyzing codebase",
	"Working directory:",
	"Press Ctrl+C",
	"Conversation saved",
	"Session",
	"───",
	"│",
}

var spinnerGlyphs = []rune{'✻', '✽', '✶', '✳', '✢'}

// Normalizer extracts the assistant reply from raw CLI output
type Normalizer struct {
	markers []string
	minLen  int
}

// NewNormalizer returns a normalizer with the built-in chrome markers
func NewNormalizer() *Normalizer {
	return &Normalizer{
		markers: chromeMarkers,
		minLen:  minContentLength,
	}
}

// Normalize filters terminal chrome out of raw. When filtering leaves almost
// nothing the cleaned output is returned whole. Normalize(Normalize(x)) equals
// Normalize(x).
func (n *Normalizer) Normalize(raw string) string {
	clean := collapseCarriageReturns(stripANSI(raw))

	lines := strings.Split(clean, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || n.isChrome(line) {
			continue
		}
		kept = append(kept, line)
	}

	result := strings.Join(kept, "\n")
	if utf8.RuneCountInString(result) < n.minLen {
		return strings.TrimSpace(clean)
	}
	return result
}

func (n *Normalizer) isChrome(line string) bool {
	for _, marker := range n.markers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	first, _ := utf8.DecodeRuneInString(line)
	return isSpinner(first)
}

func isSpinner(r rune) bool {
	if r >= 0x2800 && r <= 0x28FF {
		return true
	}
	for _, g := range spinnerGlyphs {
		if r == g {
			return true
		}
	}
	return false
}

// stripANSI removes escape sequences, payloads included. It repeats until
// stable so its output is always a fixed point.
func stripANSI(s string) string {
	for {
		next := ansi.Strip(sevenBitControls(s))
		if next == s {
			return s
		}
		s = next
	}
}

// sevenBitControls rewrites C1 controls, raw or UTF-8 encoded, as their
// ESC-prefixed form and drops other invalid UTF-8 bytes
func sevenBitControls(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			if c := s[i]; c >= 0x80 && c <= 0x9f {
				b.WriteByte(esc)
				b.WriteByte(c - 0x40)
			}
		case r >= 0x80 && r <= 0x9f:
			b.WriteByte(esc)
			b.WriteByte(byte(r - 0x40))
		default:
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

// collapseCarriageReturns keeps what a terminal would show for each line
func collapseCarriageReturns(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		if idx := strings.LastIndex(trimmed, "\r"); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		lines[i] = trimmed
	}
	return strings.Join(lines, "\n")
}
