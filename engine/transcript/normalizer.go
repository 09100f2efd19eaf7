// Package transcript parses raw interview transcripts into normalized
// speaker turns and derives the per-document statistics the enrichment and
// audit stages consume.
package transcript

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tokenizer is the deterministic token codec shared with the chunker.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// CanonicalSubject is the normalized label for the corpus subject.
const CanonicalSubject = "Sam Altman"

// UnknownSpeaker is the normalized label for generic placeholders.
const UnknownSpeaker = "Unknown Speaker"

// DefaultSnippetSampleSize is the per-segment sample count for Snippet.
const DefaultSnippetSampleSize = 4

// speakerPattern matches "Speaker: content" lines. The character class
// keeps the mojibake apostrophe bytes observed in the corpus (a UTF-8
// double-encoding of U+2019) so those lines still parse as speaker turns.
var speakerPattern = regexp.MustCompile(`^([A-Za-z0-9 .â€™'’\-]+):\s+(.+)$`)

var subjectAliases = map[string]struct{}{
	"sam":        {},
	"sam altman": {},
	"s. altman":  {},
}

var placeholderAliases = map[string]struct{}{
	"unknown": {},
	"speaker": {},
	"host":    {},
}

// Turn is one merged speaker turn, zero-indexed within its document.
type Turn struct {
	Index     int    `json:"index"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
}

// Analysis holds the normalized text and derived metrics for one document.
type Analysis struct {
	DocID         string
	Text          string
	Turns         []Turn
	MatchedLines  int
	NonEmptyLines int
	TokenCount    int
	SpeakerCounts map[string]int
}

// SpeakerRatio is the fraction of non-empty lines matching the speaker
// pattern; a low ratio flags transcripts in the wrong format.
func (a *Analysis) SpeakerRatio() float64 {
	if a.NonEmptyLines == 0 {
		return 0.0
	}
	return float64(a.MatchedLines) / float64(a.NonEmptyLines)
}

// SamTurns counts turns whose canonical speaker contains the subject's
// first name, case-insensitively.
func (a *Analysis) SamTurns() int {
	total := 0
	for name, count := range a.SpeakerCounts {
		if strings.Contains(strings.ToLower(name), "sam") {
			total += count
		}
	}
	return total
}

// Snippet renders a bounded representative sample of the turn sequence:
// up to sampleSize turns from the start, the middle, and the end, with
// duplicate indices collapsed, rendered as "[index] Speaker: text" lines in
// turn order. Keeps downstream prompt context bounded regardless of
// document length.
func (a *Analysis) Snippet(sampleSize int) string {
	if len(a.Turns) == 0 {
		return ""
	}
	if sampleSize <= 0 {
		sampleSize = DefaultSnippetSampleSize
	}

	total := len(a.Turns)
	var indices []int
	for i := 0; i < min(sampleSize, total); i++ {
		indices = append(indices, i)
	}
	if total > sampleSize*2 {
		midStart := max((total/2)-sampleSize/2, 0)
		for i := midStart; i < min(midStart+sampleSize, total); i++ {
			indices = append(indices, i)
		}
	}
	for i := max(total-sampleSize, 0); i < total; i++ {
		indices = append(indices, i)
	}

	seen := make(map[int]struct{}, len(indices))
	ordered := indices[:0]
	for _, idx := range indices {
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		ordered = append(ordered, idx)
	}
	sort.Ints(ordered)

	segments := make([]string, 0, len(ordered))
	for _, idx := range ordered {
		turn := a.Turns[idx]
		segments = append(segments, fmt.Sprintf("[%d] %s: %s", turn.Index, turn.Speaker, turn.Text))
	}
	return strings.Join(segments, "\n")
}

// SpeakerSummary renders "Name (count)" pairs sorted by name, for prompts.
func (a *Analysis) SpeakerSummary() string {
	names := make([]string, 0, len(a.SpeakerCounts))
	for name := range a.SpeakerCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s (%d)", name, a.SpeakerCounts[name])
	}
	return strings.Join(parts, ", ")
}

// NormalizeText collapses CRLF/CR to LF, trims each line, and drops blank
// lines.
func NormalizeText(text string) string {
	cleaned := strings.ReplaceAll(text, "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")
	lines := strings.Split(cleaned, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n")
}

// Normalizer segments normalized transcripts into speaker turns.
type Normalizer struct {
	tok   Tokenizer
	title cases.Caser
}

// NewNormalizer creates a Normalizer using tok for token counting.
func NewNormalizer(tok Tokenizer) *Normalizer {
	return &Normalizer{tok: tok, title: cases.Title(language.English)}
}

// Analyze normalizes text and segments it into merged speaker turns.
// Lines that do not match the speaker pattern are counted but skipped.
func (n *Normalizer) Analyze(docID, text string) *Analysis {
	normalized := NormalizeText(text)

	var lines []string
	if normalized != "" {
		lines = strings.Split(normalized, "\n")
	}

	var turns []Turn
	matched := 0
	nonEmpty := 0
	cursor := 0
	for idx, line := range lines {
		length := len(line)
		charStart := cursor
		charEnd := cursor + length
		cursor = charEnd
		if idx < len(lines)-1 {
			cursor++ // the joining newline
		}
		if line == "" {
			continue
		}
		nonEmpty++

		m := speakerPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		matched++

		speaker := n.normalizeSpeaker(m[1])
		content := strings.TrimSpace(m[2])
		if content == "" {
			continue
		}

		if len(turns) > 0 && turns[len(turns)-1].Speaker == speaker {
			last := &turns[len(turns)-1]
			last.Text = strings.TrimSpace(last.Text + " " + content)
			last.CharEnd = charEnd
			continue
		}
		turns = append(turns, Turn{
			Index:     len(turns),
			Speaker:   speaker,
			Text:      content,
			CharStart: charStart,
			CharEnd:   charEnd,
		})
	}

	counts := make(map[string]int, 8)
	for _, turn := range turns {
		counts[turn.Speaker]++
	}

	tokens := 0
	if normalized != "" && n.tok != nil {
		tokens = len(n.tok.Encode(normalized))
	}

	return &Analysis{
		DocID:         docID,
		Text:          normalized,
		Turns:         turns,
		MatchedLines:  matched,
		NonEmptyLines: nonEmpty,
		TokenCount:    tokens,
		SpeakerCounts: counts,
	}
}

func (n *Normalizer) normalizeSpeaker(label string) string {
	cleaned := strings.TrimSpace(label)
	lowered := strings.ToLower(cleaned)
	if _, ok := subjectAliases[lowered]; ok {
		return CanonicalSubject
	}
	if _, ok := placeholderAliases[lowered]; ok {
		return UnknownSpeaker
	}
	return n.title.String(cleaned)
}
