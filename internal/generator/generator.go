// Package generator turns a completed explore-type sub-agent record into a
// knowledge document: a quality gate, a title, and an ordered list of
// sections derived from the agent's Markdown result.
package generator

import (
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/knowledge"
)

// Section is one candidate part extracted from a sub-agent result, before
// it is assigned a partId.
type Section struct {
	Title   string
	Summary string
	Content string
}

// Candidate is the input to Generate: one completed explore-type sub-agent
// record.
type Candidate struct {
	Prompt      string
	Description string
	Result      string
	CompletedAt time.Time
	SessionID   string
	AgentID     string
	Project     string
}

const minResultLength = 80

// junkPatterns match a result's first non-empty line when the sub-agent
// produced nothing worth keeping.
var junkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^agent launched`),
	regexp.MustCompile(`(?i)^task completed$`),
	regexp.MustCompile(`(?i)^no results`),
	regexp.MustCompile(`(?i)^tool use was rejected`),
	regexp.MustCompile(`(?i)^i (could not|couldn't|didn't) find`),
	regexp.MustCompile(`(?i)^(done|ok|okay)\.?$`),
}

// politenessPrefixes are stripped from the start of a prompt-derived title,
// case-insensitively, before capitalization.
var politenessPrefixes = []string{
	"please ", "can you ", "could you ", "i need you to ", "i need to ",
}

// intentVerbs are stripped as a leading word from a prompt-derived title.
var intentVerbs = []string{
	"research", "investigate", "explore", "look into", "find out", "figure out",
	"analyze", "analyse", "check",
}

// Generate builds a Document from a sub-agent candidate, rejecting results
// that fail the quality gate. On success the document has no ID yet; the
// caller persists it via knowledge.Store.Create.
func Generate(c Candidate) (knowledge.CreateInput, error) {
	if err := qualityGate(c.Result); err != nil {
		return knowledge.CreateInput{}, err
	}

	sections := extractSections(c.Result)
	title := deriveTitle(c.Description, c.Prompt)
	docType := DetectType(title, sections)

	parts := make([]knowledge.Part, len(sections))
	for i, s := range sections {
		parts[i] = knowledge.Part{Title: s.Title, Summary: s.Summary, Content: s.Content}
	}

	return knowledge.CreateInput{
		Title:           title,
		Type:            knowledge.Type(docType),
		Project:         c.Project,
		Parts:           parts,
		SourceSessionID: c.SessionID,
		SourceAgentID:   c.AgentID,
		SourceTimestamp: c.CompletedAt,
	}, nil
}

// Regenerate re-runs extraction against the candidate's current result,
// preserving the document's identity; callers re-number and persist via
// knowledge.Store.Update.
func Regenerate(c Candidate) ([]knowledge.Part, error) {
	if err := qualityGate(c.Result); err != nil {
		return nil, err
	}
	sections := extractSections(c.Result)
	parts := make([]knowledge.Part, len(sections))
	for i, s := range sections {
		parts[i] = knowledge.Part{Title: s.Title, Summary: s.Summary, Content: s.Content}
	}
	return parts, nil
}

func qualityGate(result string) error {
	trimmed := strings.TrimSpace(result)
	if len(trimmed) < minResultLength {
		return apperr.New(apperr.KindInvalidRequest, "result too short (%d chars, minimum %d)", len(trimmed), minResultLength)
	}
	firstLine := trimmed
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		firstLine = trimmed[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	for _, p := range junkPatterns {
		if p.MatchString(firstLine) {
			return apperr.New(apperr.KindInvalidRequest, "result looks like a junk reply: %q", firstLine)
		}
	}
	return nil
}

// deriveTitle prefers description when 5-120 characters; otherwise derives
// from the prompt's first line per spec §4.3.
func deriveTitle(description, prompt string) string {
	d := strings.TrimSpace(description)
	if len(d) >= 5 && len(d) <= 120 {
		return d
	}

	line := prompt
	if idx := strings.IndexByte(prompt, '\n'); idx >= 0 {
		line = prompt[:idx]
	}
	line = strings.TrimSpace(line)

	lower := strings.ToLower(line)
	for _, prefix := range politenessPrefixes {
		if strings.HasPrefix(lower, prefix) {
			line = line[len(prefix):]
			lower = strings.ToLower(line)
			break
		}
	}
	for _, verb := range intentVerbs {
		if strings.HasPrefix(lower, verb+" ") {
			line = strings.TrimSpace(line[len(verb):])
			break
		}
	}

	line = strings.TrimSuffix(strings.TrimSpace(line), ".")
	line = capitalize(line)
	if len(line) > 120 {
		line = line[:120]
	}
	return line
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}

// BatchResult summarizes one generateAll pass.
type BatchResult struct {
	Generated int
	Errors    int
	Stopped   bool
}

// stopFlag is a process-wide "stop generateAll" signal, set via RequestStop
// and checked between candidates (spec §4.3's in-process stop flag).
var stopFlag int32

// RequestStop asks any in-flight GenerateAll to stop after its current
// candidate.
func RequestStop() { atomic.StoreInt32(&stopFlag, 1) }

func resetStop() { atomic.StoreInt32(&stopFlag, 0) }

func stopRequested() bool { return atomic.LoadInt32(&stopFlag) == 1 }

// Sink persists one generated document; callers pass a closure wrapping
// knowledge.Store.Create (or a no-op for dry runs).
type Sink func(knowledge.CreateInput) error

// GenerateAll iterates candidates sequentially, honoring RequestStop
// between iterations, and persists each successful candidate via sink.
func GenerateAll(candidates []Candidate, sink Sink) BatchResult {
	resetStop()
	var result BatchResult
	for _, c := range candidates {
		if stopRequested() {
			result.Stopped = true
			break
		}
		input, err := Generate(c)
		if err != nil {
			result.Errors++
			continue
		}
		if err := sink(input); err != nil {
			result.Errors++
			continue
		}
		result.Generated++
	}
	return result
}
