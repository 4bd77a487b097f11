package generator

import (
	"regexp"
	"strings"
)

// headingRe matches a "##" or "###" Markdown heading line, capturing its
// level markers and text.
var headingRe = regexp.MustCompile(`(?m)^(#{2,3})\s+(.+?)\s*$`)

// fenceRe matches a fenced-code-block delimiter line (``` or ~~~, any
// trailing language tag).
var fenceRe = regexp.MustCompile("(?m)^(```|~~~)")

type rawSection struct {
	level int // 2 or 3
	title string
	start int // byte offset of section body (after heading line)
	end   int // byte offset where section body ends
}

// extractSections implements spec §4.3's section-extraction algorithm:
// find headings outside fenced code blocks, choose the heading level that
// best partitions the document, carve out a leading "Overview" section,
// fold short sections into their successor, and clean headings.
func extractSections(body string) []Section {
	fencedRanges := fencedByteRanges(body)

	allHeadings := headingRe.FindAllStringSubmatchIndex(body, -1)
	var h2, h3 []int // indices into allHeadings, by level
	for i, m := range allHeadings {
		if insideAny(m[0], fencedRanges) {
			continue
		}
		level := len(body[m[2]:m[3]])
		if level == 3 {
			h3 = append(h3, i)
		} else {
			h2 = append(h2, i)
		}
	}

	var chosen []int
	switch {
	case len(h3) >= 3 && len(h3) >= 2*len(h2):
		chosen = h3
	case len(h2) >= 2:
		chosen = h2
	case len(h3) >= 2:
		chosen = h3
	case len(h2) > 0 || len(h3) > 0:
		if len(h2) >= len(h3) {
			chosen = h2
		} else {
			chosen = h3
		}
	}

	if len(chosen) == 0 {
		return []Section{{Title: "Overview", Summary: summaryOf(body), Content: body}}
	}

	var raw []rawSection
	for idx, hi := range chosen {
		m := allHeadings[hi]
		level := len(body[m[2]:m[3]])
		title := cleanHeading(body[m[4]:m[5]])
		start := m[1]
		end := len(body)
		if idx+1 < len(chosen) {
			end = allHeadings[chosen[idx+1]][0]
		}
		raw = append(raw, rawSection{level: level, title: title, start: start, end: end})
	}

	var sections []Section
	if overview := strings.TrimSpace(body[:allHeadings[chosen[0]][0]]); len(overview) > 100 {
		sections = append(sections, Section{Title: "Overview", Summary: summaryOf(overview), Content: overview})
	}

	for _, r := range raw {
		text := strings.TrimSpace(body[r.start:r.end])
		sections = append(sections, Section{Title: r.title, Summary: summaryOf(text), Content: text})
	}

	return foldShortSections(sections)
}

// foldShortSections merges any section shorter than 50 characters, plus its
// heading rendered as bold text, into the following section.
func foldShortSections(sections []Section) []Section {
	if len(sections) == 0 {
		return sections
	}
	var out []Section
	var pendingPrefix string
	for i, s := range sections {
		full := s.Summary
		if s.Content != "" {
			full = full + "\n\n" + s.Content
		}
		isLast := i == len(sections)-1
		if len(full) < 50 {
			pendingPrefix += "**" + s.Title + "**\n\n" + full + "\n\n"
			if !isLast {
				continue
			}
			// Short last section has no successor to fold into: fold
			// backward into the previous kept section instead.
			if len(out) > 0 {
				last := out[len(out)-1]
				lastFull := last.Summary
				if last.Content != "" {
					lastFull += "\n\n" + last.Content
				}
				lastFull += "\n\n" + pendingPrefix
				last.Summary, last.Content = splitSummary(lastFull)
				out[len(out)-1] = last
				pendingPrefix = ""
				continue
			}
			// No previous section exists either: keep it as-is.
			out = append(out, s)
			continue
		}
		if pendingPrefix != "" {
			full = pendingPrefix + full
			pendingPrefix = ""
			s.Summary, s.Content = splitSummary(full)
		}
		out = append(out, s)
	}
	return out
}

func splitSummary(text string) (summary, content string) {
	parts := strings.SplitN(strings.TrimSpace(text), "\n\n", 2)
	summary = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		content = strings.TrimSpace(parts[1])
	}
	return summary, content
}

func summaryOf(text string) string {
	summary, _ := splitSummary(text)
	return summary
}

// cleanHeading removes bold markers, backticks, and Markdown link syntax
// from a heading's text.
func cleanHeading(h string) string {
	h = strings.TrimSpace(h)
	h = strings.ReplaceAll(h, "**", "")
	h = strings.ReplaceAll(h, "`", "")
	h = mdLinkRe.ReplaceAllString(h, "$1")
	return strings.TrimSpace(h)
}

var mdLinkRe = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)

func fencedByteRanges(body string) [][2]int {
	matches := fenceRe.FindAllStringIndex(body, -1)
	var ranges [][2]int
	for i := 0; i+1 < len(matches); i += 2 {
		ranges = append(ranges, [2]int{matches[i][0], matches[i+1][1]})
	}
	return ranges
}

func insideAny(offset int, ranges [][2]int) bool {
	for _, r := range ranges {
		if offset >= r[0] && offset < r[1] {
			return true
		}
	}
	return false
}

// typeKeywords scores a document's title + part titles + summaries against
// each knowledge type's keyword set; the type with the highest score wins,
// ties broken by this table's order (grounded on the teacher's
// InferContentType explicit-then-keyword precedence table).
var typeKeywords = []struct {
	docType  string
	keywords []string
}{
	{"contract", []string{"interface", "contract", "api", "endpoint", "protocol", "signature"}},
	{"schema", []string{"schema", "table", "column", "migration", "field", "model struct"}},
	{"invariant", []string{"invariant", "must always", "guarantee", "never", "constraint"}},
	{"algorithm", []string{"algorithm", "compute", "score", "rank", "sort", "search strategy"}},
	{"flow", []string{"flow", "pipeline", "sequence", "step", "lifecycle", "state machine"}},
	{"wiring", []string{"wire", "wiring", "dependency", "inject", "config", "setup"}},
}

// DetectType scores the concatenated title, part titles, and summaries
// against typeKeywords, returning the best match (defaulting to "wiring").
func DetectType(title string, sections []Section) string {
	var sb strings.Builder
	sb.WriteString(title)
	for _, s := range sections {
		sb.WriteString(" ")
		sb.WriteString(s.Title)
		sb.WriteString(" ")
		sb.WriteString(s.Summary)
	}
	text := strings.ToLower(sb.String())

	best := "wiring"
	bestScore := 0
	for _, tk := range typeKeywords {
		score := 0
		for _, kw := range tk.keywords {
			score += strings.Count(text, kw)
		}
		if score > bestScore {
			bestScore = score
			best = tk.docType
		}
	}
	return best
}
