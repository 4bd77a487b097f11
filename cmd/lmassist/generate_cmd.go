package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/langmartai/lmassist/internal/apperr"
	"github.com/langmartai/lmassist/internal/cli"
	"github.com/langmartai/lmassist/internal/config"
	"github.com/langmartai/lmassist/internal/generator"
	"github.com/langmartai/lmassist/internal/indexer"
	"github.com/langmartai/lmassist/internal/knowledge"
	"github.com/langmartai/lmassist/internal/sessioncache"
)

func generateCmd() *cobra.Command {
	var all bool
	var project string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Turn completed sub-agent sessions into knowledge documents",
		Long: `Scans session transcripts under the coding assistant's projects directory
for completed "explore"-type sub-agents and turns each one not already
captured as a knowledge document into one. Without --all, only the most
recently completed candidate is processed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(all, project)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Process every outstanding candidate, not just the most recent")
	cmd.Flags().StringVar(&project, "project", "", "Restrict to one project (absolute path)")
	return cmd
}

// discoverCandidates walks the assistant's per-project session directories,
// parsing every transcript and collecting completed sub-agents that have
// not yet been captured as a knowledge document.
func discoverCandidates(store *knowledge.Store, projectFilter string) ([]generator.Candidate, error) {
	root := config.ProjectsDir()
	var candidates []generator.Candidate

	entries, err := filepath.Glob(filepath.Join(root, "*"))
	if err != nil {
		return nil, err
	}
	for _, projectDir := range entries {
		project := config.DecodeProjectPath(filepath.Base(projectDir))
		if projectFilter != "" && project != projectFilter {
			continue
		}

		err := filepath.WalkDir(projectDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
				return nil
			}
			if strings.Contains(path, string(filepath.Separator)+"subagents"+string(filepath.Separator)) {
				return nil
			}
			entry, perr := sessioncache.ParseFile(path)
			if perr != nil {
				return nil // malformed transcript; skip rather than abort the scan
			}
			for _, agent := range entry.SubAgents {
				if agent.Status != "completed" {
					continue
				}
				if !strings.EqualFold(agent.AgentType, "explore") {
					continue
				}
				if _, err := store.FindByAgentID(agent.AgentID); err == nil {
					continue // already generated
				} else if kind, ok := apperr.KindOf(err); ok && kind != apperr.KindNotFound {
					return err
				}
				candidates = append(candidates, generator.Candidate{
					Prompt:      agent.Prompt,
					Description: agent.Description,
					Result:      agent.Result,
					CompletedAt: agent.CompletedAt,
					SessionID:   entry.SessionID,
					AgentID:     agent.AgentID,
					Project:     project,
				})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sortCandidatesByCompletedAt(candidates)
	return candidates, nil
}

func sortCandidatesByCompletedAt(candidates []generator.Candidate) {
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].CompletedAt.After(candidates[j-1].CompletedAt); j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}

func runGenerate(all bool, project string) error {
	app, err := newAppContext(true)
	if err != nil {
		return err
	}
	defer app.Close()

	candidates, err := discoverCandidates(app.Store, project)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		cli.Footer("no outstanding candidates")
		return nil
	}
	if !all {
		candidates = candidates[:1]
	}

	cli.Header(fmt.Sprintf("Generating from %d candidate(s)", len(candidates)))
	bar := progressbar.Default(int64(len(candidates)))

	sink := func(in knowledge.CreateInput) error {
		doc, err := app.Store.Create(in)
		if err != nil {
			return err
		}
		if err := indexer.IndexDocument(app.DB, app.Provider, doc); err != nil {
			app.Logger.Warn("index generated document failed", zap.Error(err))
		}
		bar.Add(1)
		return nil
	}

	result := generator.GenerateAll(candidates, sink)
	if err := app.DB.RebuildFtsIndex(); err != nil {
		app.Logger.Warn("rebuild fts index after generate failed", zap.Error(err))
	}

	cli.Footer(fmt.Sprintf("generated %d, rejected %d, stopped=%v", result.Generated, result.Errors, result.Stopped))
	return nil
}
