package enrich

import (
	"fmt"
	"strings"
)

const documentSystemPrompt = `You are an analyst cataloguing interview transcripts featuring Sam Altman.
Given transcript excerpts and speaker statistics, respond with a single JSON object:
{
  "doc_summary": "2-4 sentence summary of what the conversation covers",
  "key_themes": ["theme", ...],
  "time_span": "the era or period the conversation belongs to, e.g. 'early OpenAI, ~2016'",
  "entities": ["people, companies and projects discussed", ...],
  "stance_notes": "notable positions Sam Altman takes, or an empty string"
}
Respond with JSON only.`

const chunkSystemPrompt = `You are an analyst indexing one passage from an interview featuring Sam Altman.
Respond with a single JSON object:
{
  "chunk_summary": "1-2 sentence summary of this passage",
  "chunk_intents": ["questions this passage answers, phrased as intents", ...],
  "chunk_sentiment": "positive, negative, neutral, or mixed",
  "chunk_claims": ["factual claims made in this passage", ...]
}
Respond with JSON only.`

func documentUserPrompt(title, speakerSummary, snippet string) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	if speakerSummary != "" {
		fmt.Fprintf(&b, "Speakers: %s\n", speakerSummary)
	}
	b.WriteString("Excerpts:\n")
	b.WriteString(snippet)
	return b.String()
}

func chunkUserPrompt(title, text string) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "From: %s\n", title)
	}
	b.WriteString("Passage:\n")
	b.WriteString(text)
	return b.String()
}
