package knowledge

import (
	"regexp"
	"strings"
	"time"

	"github.com/langmartai/lmassist/internal/apperr"
)

// partHeadingRe matches "## K123.4: Title text" per spec §4.2's part
// heading regex.
var partHeadingRe = regexp.MustCompile(`^##\s+(\w+\.\d+):\s+(.+)$`)

// ToMarkdown renders a document as a single Markdown file: a front-matter
// block bounded by "---" lines, followed by one "## partId: title" section
// per part.
func ToMarkdown(d *Document) string {
	var b strings.Builder
	b.WriteString("---\n")
	writeField(&b, "id", d.ID)
	writeField(&b, "title", d.Title)
	writeField(&b, "type", string(d.Type))
	writeField(&b, "project", d.Project)
	writeField(&b, "status", string(d.Status))
	writeField(&b, "createdAt", d.CreatedAt.UTC().Format(time.RFC3339))
	writeField(&b, "updatedAt", d.UpdatedAt.UTC().Format(time.RFC3339))
	if d.SourceSessionID != "" {
		writeField(&b, "sourceSessionId", d.SourceSessionID)
	}
	if d.SourceAgentID != "" {
		writeField(&b, "sourceAgentId", d.SourceAgentID)
	}
	if !d.SourceTimestamp.IsZero() {
		writeField(&b, "sourceTimestamp", d.SourceTimestamp.UTC().Format(time.RFC3339))
	}
	if d.Origin != nil {
		writeField(&b, "origin", "remote")
		writeField(&b, "machineId", d.Origin.MachineID)
		writeField(&b, "machineHostname", d.Origin.MachineHostname)
		writeField(&b, "machineOS", d.Origin.MachineOS)
	}
	b.WriteString("---\n\n")

	for _, p := range d.Parts {
		b.WriteString("## ")
		b.WriteString(p.PartID)
		b.WriteString(": ")
		b.WriteString(p.Title)
		b.WriteString("\n\n")
		if p.Summary != "" {
			b.WriteString(p.Summary)
			b.WriteString("\n\n")
		}
		if p.Content != "" {
			b.WriteString(p.Content)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// writeField emits a front-matter "key: value" line, quoting the value
// (escaping `\` and `"`) when it contains a colon, quote, or leading/
// trailing space that would otherwise be ambiguous to re-parse.
func writeField(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	if needsQuoting(value) {
		b.WriteByte('"')
		b.WriteString(escapeQuoted(value))
		b.WriteByte('"')
	} else {
		b.WriteString(value)
	}
	b.WriteByte('\n')
}

func needsQuoting(v string) bool {
	return strings.ContainsAny(v, ":\"\\") || v != strings.TrimSpace(v) || v == ""
}

func escapeQuoted(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return v
}

// ParseMarkdown parses a full document file: a "---"-bounded front-matter
// block of "key: value" lines (quoted values allow \" and \\ escaping) and a
// body of "## partId: title" sections. The first non-empty paragraph after a
// heading is the part's summary; everything after the next blank line is
// content.
func ParseMarkdown(raw string) (*Document, error) {
	lines := strings.Split(raw, "\n")

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return nil, apperr.New(apperr.KindParseError, "missing front-matter delimiter")
	}

	fields := make(map[string]string)
	i := 1
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "---" {
			i++
			break
		}
		key, value, ok := parseFrontMatterLine(line)
		if ok {
			fields[key] = value
		}
	}

	doc := &Document{
		ID:      fields["id"],
		Title:   fields["title"],
		Type:    Type(fields["type"]),
		Project: fields["project"],
		Status:  Status(fields["status"]),
	}
	if doc.Status == "" {
		doc.Status = StatusActive
	}
	doc.CreatedAt = parseTimeOrZero(fields["createdAt"])
	doc.UpdatedAt = parseTimeOrZero(fields["updatedAt"])
	doc.SourceSessionID = fields["sourceSessionId"]
	doc.SourceAgentID = fields["sourceAgentId"]
	doc.SourceTimestamp = parseTimeOrZero(fields["sourceTimestamp"])
	if fields["origin"] == "remote" {
		doc.Origin = &Origin{
			MachineID:       fields["machineId"],
			MachineHostname: fields["machineHostname"],
			MachineOS:       fields["machineOS"],
		}
	}

	body := strings.Join(lines[i:], "\n")
	doc.Parts = parseParts(body)
	return doc, nil
}

func parseFrontMatterLine(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	if key == "" {
		return "", "", false
	}
	raw := strings.TrimSpace(line[idx+1:])
	if strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) && len(raw) >= 2 {
		value = unescapeQuoted(raw[1 : len(raw)-1])
	} else {
		value = raw
	}
	return key, value, true
}

func unescapeQuoted(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) && (v[i+1] == '"' || v[i+1] == '\\') {
			b.WriteByte(v[i+1])
			i++
			continue
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

func parseTimeOrZero(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseParts splits a document body into parts at "## partId: title"
// headings, per the regex in spec §4.2.
func parseParts(body string) []Part {
	lines := strings.Split(body, "\n")

	type rawSection struct {
		partID string
		title  string
		start  int // first line index of section body
		end    int // exclusive
	}
	var sections []rawSection
	for idx, line := range lines {
		m := partHeadingRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		if len(sections) > 0 {
			sections[len(sections)-1].end = idx
		}
		sections = append(sections, rawSection{partID: m[1], title: strings.TrimSpace(m[2]), start: idx + 1})
	}
	if len(sections) > 0 {
		sections[len(sections)-1].end = len(lines)
	}

	parts := make([]Part, 0, len(sections))
	for _, s := range sections {
		sectionLines := lines[s.start:s.end]
		summary, content := splitSummaryContent(sectionLines)
		parts = append(parts, Part{
			PartID:  s.partID,
			Title:   s.title,
			Summary: summary,
			Content: content,
		})
	}
	return parts
}

// splitSummaryContent treats the first non-empty paragraph as the summary;
// everything after the next blank line is content.
func splitSummaryContent(lines []string) (summary, content string) {
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := start
	for end < len(lines) && strings.TrimSpace(lines[end]) != "" {
		end++
	}
	summary = strings.TrimSpace(strings.Join(lines[start:end], "\n"))

	rest := end
	for rest < len(lines) && strings.TrimSpace(lines[rest]) == "" {
		rest++
	}
	content = strings.TrimSpace(strings.Join(lines[rest:], "\n"))
	return summary, content
}
