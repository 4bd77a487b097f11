package sessioncache

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxLineBytes = 10 * 1024 * 1024

// ParseFile reads one session transcript line by line, tolerating malformed
// lines by skipping them, and returns the parsed snapshot. Sub-agent
// transcripts living alongside the file (subagents/{agentId}.jsonl) are
// read to fill in SubAgentSummary.Result/Status.
func ParseFile(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Path:      path,
		SessionID: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FileMtime: info.ModTime(),
	}

	var usage TokenUsage
	var resultCostSeen bool
	agentLaunches := map[string]SubAgentSummary{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // tolerate malformed lines
		}

		switch rec.Type {
		case "system":
			if rec.Subtype == "init" && entry.Model == "" {
				entry.Model = rec.Model
			}
		case "user":
			if IsRealUserPrompt(rec) {
				entry.TurnCount++
				if text := extractText(rec.Message); text != "" {
					entry.UserPrompts = append(entry.UserPrompts, text)
				}
			}
			if rec.ParentUUID != "" && entry.ForkPointUUID == "" && len(entry.UserPrompts) <= 1 {
				// First user record pointing at a parent UUID signals this
				// transcript forked from another session at that point.
				// Resolving which session owns that UUID is the cache
				// layer's job (it has visibility across session files).
				entry.ForkPointUUID = rec.ParentUUID
			}
		case "assistant":
			if rec.Message != nil && rec.Message.Usage != nil {
				u := rec.Message.Usage
				usage.InputTokens += u.InputTokens
				usage.OutputTokens += u.OutputTokens
				usage.CacheCreationInputTokens += u.CacheCreationInputTokens
				usage.CacheReadInputTokens += u.CacheReadInputTokens
			}
			for _, launch := range extractTaskLaunches(rec.Message) {
				agentLaunches[launch.AgentID] = launch
			}
			if todos := extractTodoWrite(rec.Message); todos != nil {
				entry.TaskList = todos
			}
		case "result":
			if rec.TotalCost > 0 {
				entry.TotalCostUSD = rec.TotalCost
				resultCostSeen = true
			}
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, err
	}

	if !resultCostSeen {
		entry.TotalCostUSD = estimateCostUSD(entry.Model, usage)
	}

	if len(agentLaunches) > 0 {
		dir := filepath.Join(filepath.Dir(path), "subagents")
		for agentID, launch := range agentLaunches {
			enrichSubAgent(dir, agentID, &launch)
			entry.SubAgents = append(entry.SubAgents, launch)
		}
	}

	return entry, nil
}

// IsRealUserPrompt is a pure predicate on a user record's text shape and
// metadata: it excludes synthetic tool-result replies, slash-command
// expansions, and plan-mode replies, none of which represent the human
// typing a prompt.
func IsRealUserPrompt(rec Record) bool {
	if rec.Type != "user" || rec.IsMeta {
		return false
	}
	if rec.Message == nil {
		return false
	}
	text := extractText(rec.Message)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "<command-") || strings.HasPrefix(trimmed, "<local-command-") {
		return false
	}
	if blocks, ok := rec.Message.Content.([]any); ok {
		for _, b := range blocks {
			if m, ok := b.(map[string]any); ok {
				if t, _ := m["type"].(string); t == "tool_result" {
					return false
				}
			}
		}
	}
	return true
}

// extractText returns the plain-text content of a message, whether Content
// is a bare string or a content-block array.
func extractText(msg *Message) string {
	if msg == nil {
		return ""
	}
	switch c := msg.Content.(type) {
	case string:
		return c
	case []any:
		var b strings.Builder
		for _, item := range c {
			if m, ok := item.(map[string]any); ok {
				if t, _ := m["type"].(string); t == "text" {
					if s, ok := m["text"].(string); ok {
						b.WriteString(s)
					}
				}
			}
		}
		return b.String()
	default:
		return ""
	}
}

// extractTaskLaunches scans a message's content blocks for Task tool_use
// invocations, returning one SubAgentSummary per launch keyed by tool use ID.
func extractTaskLaunches(msg *Message) []SubAgentSummary {
	if msg == nil {
		return nil
	}
	blocks, ok := msg.Content.([]any)
	if !ok {
		return nil
	}
	var launches []SubAgentSummary
	for _, item := range blocks {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := m["type"].(string); t != "tool_use" {
			continue
		}
		name, _ := m["tool_name"].(string)
		if name != "Task" {
			continue
		}
		id, _ := m["tool_use_id"].(string)
		if id == "" {
			continue
		}
		summary := SubAgentSummary{AgentID: id, Status: "running"}
		if input, ok := m["tool_input"].(map[string]any); ok {
			if p, ok := input["prompt"].(string); ok {
				summary.Prompt = p
			}
			if d, ok := input["description"].(string); ok {
				summary.Description = d
			}
			if t, ok := input["subagent_type"].(string); ok {
				summary.AgentType = t
			}
		}
		launches = append(launches, summary)
	}
	return launches
}

// extractTodoWrite scans a message's content blocks for the most recent
// TodoWrite tool call, returning its list of task descriptions. The latest
// call in the transcript wins — callers assign over any prior value.
func extractTodoWrite(msg *Message) []string {
	if msg == nil {
		return nil
	}
	blocks, ok := msg.Content.([]any)
	if !ok {
		return nil
	}
	for _, item := range blocks {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := m["type"].(string); t != "tool_use" {
			continue
		}
		if name, _ := m["tool_name"].(string); name != "TodoWrite" {
			continue
		}
		input, ok := m["tool_input"].(map[string]any)
		if !ok {
			continue
		}
		rawTodos, ok := input["todos"].([]any)
		if !ok {
			continue
		}
		var tasks []string
		for _, rt := range rawTodos {
			td, ok := rt.(map[string]any)
			if !ok {
				continue
			}
			if content, ok := td["content"].(string); ok {
				tasks = append(tasks, content)
			}
		}
		return tasks
	}
	return nil
}

// enrichSubAgent reads a sub-agent's own transcript to fill in its result,
// status, and timing, if the file exists.
func enrichSubAgent(subAgentsDir, agentID string, summary *SubAgentSummary) {
	path := filepath.Join(subAgentsDir, agentID+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	var firstTS, lastTS time.Time
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, rec.Timestamp)
		if !ts.IsZero() {
			if firstTS.IsZero() {
				firstTS = ts
			}
			lastTS = ts
		}
		if rec.Type == "result" {
			summary.Result = extractText(rec.Message)
			summary.Status = "completed"
		}
	}
	summary.StartedAt = firstTS
	summary.CompletedAt = lastTS
}
