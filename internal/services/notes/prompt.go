package notes

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/voicenote/internal/models"
)

const noteGuidelines = `You are an expert note-taker creating comprehensive, detailed, and well-structured notes from video transcripts.

Your task is to convert the following transcript into exceptional markdown notes that capture ALL the information presented.

IMPORTANT GUIDELINES:
- DO NOT summarize or skip content - capture ALL details, explanations, and information
- DO NOT remove examples, stories, or contextual information
- DO NOT condense multiple concepts into single points
- Include ALL technical details, specifications, and explanations
- Preserve the flow and progression of ideas from the original content
- If the speaker explains something in depth, your notes should reflect that depth
- When in doubt, include MORE detail rather than less

Your notes should be:
- Well-organized with clear headings and subheadings
- Comprehensive and detailed (not abbreviated or summarized)
- Easy to scan and navigate
- Properly formatted in markdown

Please include:
1. A brief overview at the top (2-3 sentences)
2. Main concepts organized by topic (use ## for main sections, ### for subsections)
3. Detailed bullet points that capture ALL information (not just highlights)
4. Important terms, names, definitions, or concepts in **bold**
5. Complete step-by-step instructions or processes (if applicable) as numbered lists
6. All examples, use cases, and practical applications mentioned
7. Code examples in code blocks with full context (if applicable)
8. Important quotes in blockquotes
9. A "Key Takeaways" section at the end with 5-10 comprehensive points
10. An "Additional Details" section if there's extra context worth preserving

Remember: Your goal is to create notes so comprehensive that someone could understand the full content WITHOUT watching the video. Don't leave out important information!`

// maxDescriptionChars bounds the source description carried into a prompt
const maxDescriptionChars = 2000

// part identifies one chunk of a long transcript
type part struct {
	index int // 1-based
	total int
}

// buildPrompt assembles the user message for one transcript part
func buildPrompt(text string, meta models.Metadata, p part) string {
	var b strings.Builder

	b.WriteString(noteGuidelines)
	b.WriteString("\n\n")

	if info := videoInformation(meta, p); info != "" {
		b.WriteString("## Video Information:\n")
		b.WriteString(info)
		b.WriteString("\n")
	}

	b.WriteString("## Transcript:\n\n")
	b.WriteString(text)
	b.WriteString("\n\n---\n\n")
	b.WriteString("Now, create well-structured markdown notes from this transcript. Start with a clear title (# heading) based on the content:\n")

	return b.String()
}

func videoInformation(meta models.Metadata, p part) string {
	var b strings.Builder
	if meta.Title != "" {
		fmt.Fprintf(&b, "- **Title**: %s\n", meta.Title)
	}
	if meta.Creator != "" {
		fmt.Fprintf(&b, "- **Creator**: %s\n", meta.Creator)
	}
	if minutes := int(meta.Duration) / 60; minutes > 0 {
		fmt.Fprintf(&b, "- **Duration**: %d minutes\n", minutes)
	}
	if meta.CanonicalURL != "" {
		fmt.Fprintf(&b, "- **Source**: %s\n", meta.CanonicalURL)
	}
	if p.total > 1 {
		fmt.Fprintf(&b, "- **Part**: Part %d of %d\n", p.index, p.total)
	}
	if meta.Description != "" {
		fmt.Fprintf(&b, "- **Description**:\n\n%s\n", truncate(meta.Description, maxDescriptionChars))
	}
	return b.String()
}

// combineParts joins per-part notes under a single title
func combineParts(title string, parts []string) string {
	combined := strings.Join(parts, "\n\n---\n\n")
	if title == "" {
		return combined
	}
	header := fmt.Sprintf("# %s\n\n*These notes were generated from a long recording and are split into %d parts.*\n\n", title, len(parts))
	return header + combined
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}
