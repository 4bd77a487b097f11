package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/langmartai/lmassist/internal/cli"
	"github.com/langmartai/lmassist/internal/sync"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull active local-origin knowledge from peer workstations for this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync()
		},
	}
	return cmd
}

// gitFetchRemotes returns the current directory's configured git remote
// URLs (origin and any others), best-effort: a non-git directory or a
// missing git binary yields an empty list rather than an error.
func gitFetchRemotes() []string {
	out, err := exec.Command("git", "remote").Output()
	if err != nil {
		return nil
	}
	var remotes []string
	for _, name := range strings.Fields(string(out)) {
		url, err := exec.Command("git", "remote", "get-url", name).Output()
		if err != nil {
			continue
		}
		remotes = append(remotes, strings.TrimSpace(string(url)))
	}
	return remotes
}

func runSync() error {
	app, err := newAppContext(true)
	if err != nil {
		return err
	}
	defer app.Close()

	hubClient, err := app.newHubClient()
	if err != nil {
		return err
	}
	if hubClient == nil {
		cli.Warn("no hub configured (set %s)", "TIER_AGENT_HUB_URL")
		return nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	project := sync.Project{Path: cwd, FetchRemotes: gitFetchRemotes()}

	svc := app.newSyncService()
	if err := svc.Start(hubClient, project); err != nil {
		return err
	}

	cli.Header("Syncing")
	for {
		status := svc.StatusSnapshot()
		if !status.Running {
			if status.Error != "" {
				cli.Err("sync failed: %s", status.Error)
				return nil
			}
			cli.Footer(fmt.Sprintf("synced %d, skipped %d, flagged stale %d",
				status.EntriesSynced, status.EntriesSkipped, status.EntriesFlaggedStale))
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
}
