package retrieval

import (
	"fmt"
	"strings"
	"time"

	"github.com/langmartai/lmassist/internal/config"
	"github.com/langmartai/lmassist/internal/embedding"
	"github.com/langmartai/lmassist/internal/knowledge"
	"github.com/langmartai/lmassist/internal/vectorstore"
)

const footer = "\n(Use the lmassist MCP tools to search, create, or comment on knowledge documents directly.)\n"

// SuggestInput is the context suggester's request.
type SuggestInput struct {
	Prompt    string
	SessionID string
	Project   string
}

// Suggestion is the context suggester's response: the rendered block, its
// estimated token cost, and the part IDs it drew from.
type Suggestion struct {
	Context string   `json:"context"`
	Tokens  int      `json:"tokens"`
	Sources []string `json:"sources"`
}

// Suggest implements spec §4.6: reads the per-user settings, runs the
// retrieval engine for each enabled section, and renders a Markdown block
// with a header and an MCP-tools footer.
func Suggest(db *vectorstore.DB, store *knowledge.Store, provider embedding.Provider, in SuggestInput) (Suggestion, error) {
	settings := config.LoadSettings()

	if (!settings.ContextInjectKnowledge && !settings.ContextInjectMilestones) ||
		(settings.ContextInjectKnowledgeCount == 0 && settings.ContextInjectMilestoneCount == 0) {
		return Suggestion{}, nil
	}

	count, err := db.RowCount()
	if err != nil {
		return Suggestion{}, err
	}
	if count == 0 {
		return Suggestion{}, nil
	}

	var lines []string
	var sources []string

	if settings.ContextInjectKnowledge && settings.ContextInjectKnowledgeCount > 0 {
		results, err := SearchKnowledge(db, store, provider, in.Prompt, settings.ContextInjectKnowledgeCount)
		if err != nil {
			return Suggestion{}, err
		}
		for _, r := range results {
			lines = append(lines, formatKnowledgeLine(r))
			if r.Row.PartID != "" {
				sources = append(sources, r.Row.PartID)
			}
		}
	}

	if settings.ContextInjectMilestones && settings.ContextInjectMilestoneCount > 0 {
		results, err := SearchMilestones(db, provider, in.Prompt, settings.ContextInjectMilestoneCount)
		if err != nil {
			return Suggestion{}, err
		}
		for _, r := range results {
			lines = append(lines, formatMilestoneLine(r))
		}
	}

	if len(lines) == 0 {
		return Suggestion{}, nil
	}

	var b strings.Builder
	b.WriteString("## Related context\n\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString(footer)

	text := b.String()
	return Suggestion{Context: text, Tokens: EstimateTokens(text), Sources: sources}, nil
}

func formatKnowledgeLine(r Result) string {
	summary := r.Row.Text
	if len(summary) > 120 {
		summary = summary[:120]
	}
	return fmt.Sprintf("- [%s] (%s) %s → %s: %s", r.Row.PartID, timeAgo(r.Row.Timestamp), r.KnowledgeTitle, r.PartTitle, summary)
}

func formatMilestoneLine(r MilestoneResult) string {
	marker := ""
	title := r.Title
	if r.Row.VectorRow.IsPhase1() && title == "" {
		marker = " (phase 1)"
		title = synthesizeMilestoneTitle(r.Row.VectorRow)
	}
	id := vectorstore.MilestoneID(r.Row.SessionID, r.Row.MilestoneIndex)
	return fmt.Sprintf("- [%s] %s%s: %s", id, timeAgo(r.Row.Timestamp), marker, title)
}

// synthesizeMilestoneTitle builds a title for a Phase-1 milestone with no
// LLM-authored title, from the first substantial user prompt (spec §4.6
// step 5).
func synthesizeMilestoneTitle(row vectorstore.VectorRow) string {
	text := strings.TrimSpace(row.Text)
	if len(text) > 15 {
		if len(text) > 80 {
			text = text[:80]
		}
		return text
	}
	return "Files modified this session"
}

// timeAgo renders an ISO-8601 timestamp as a short relative-time string,
// or "unknown time" if the timestamp is absent or unparseable.
func timeAgo(ts string) string {
	if ts == "" {
		return "unknown time"
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "unknown time"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dmo ago", int(d.Hours()/24/30))
	}
}

// EstimateTokens estimates token count as ceil(len(text) / 4), per spec
// §4.6 (a deliberate correction of the teacher's floor-division estimator).
func EstimateTokens(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
