package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/langmartai/lmassist/internal/cli"
	"github.com/langmartai/lmassist/internal/knowledge"
	"github.com/langmartai/lmassist/internal/vectorstore"
)

// check is one health check's outcome, mirroring the teacher's doctor report shape.
type check struct {
	Name     string
	Status   string // "pass", "fail"
	Detail   string
	Repaired bool
}

func doctorCmd() *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the knowledge store and vector index for invariant violations",
		Long: `Runs the invariant checks from the knowledge store's design: every index
entry has a backing Markdown file, no sourceAgentId is duplicated across
local documents, and the vector store carries no orphaned rows for
documents that no longer exist. Markdown files that have no index entry
are not reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(repair)
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "Remove orphaned vector rows and local index entries missing their backing file")
	return cmd
}

func runDoctor(repair bool) error {
	app, err := newAppContext(false)
	if err != nil {
		return err
	}
	defer app.Close()

	var checks []check
	checks = append(checks, checkIndexFileSymmetry(app.Store, repair)...)
	checks = append(checks, checkDuplicateAgentIDs(app.Store))
	checks = append(checks, checkOrphanVectors(app.Store, app.DB, repair))

	cli.Header("lmassist doctor")
	failed := 0
	for _, c := range checks {
		switch c.Status {
		case "pass":
			fmt.Printf("  %s %s\n", "✓", c.Name)
		default:
			failed++
			suffix := ""
			if c.Repaired {
				suffix = " (repaired)"
			}
			cli.Warn("  ✗ %s: %s%s", c.Name, c.Detail, suffix)
		}
	}
	cli.Footer(fmt.Sprintf("%d check(s), %d failed", len(checks), failed))
	if failed > 0 && !repair {
		os.Exit(1)
	}
	return nil
}

// checkIndexFileSymmetry verifies invariant: every index entry has a
// backing Markdown file (spec §8 invariant set: index/file backing
// symmetry). With repair, local entries missing their file are dropped from
// the index — the file is the source of truth, so a missing file means the
// entry is stale. Remote entries missing their file are reported only.
func checkIndexFileSymmetry(store *knowledge.Store, repair bool) []check {
	entries, err := store.List(knowledge.Filter{})
	if err != nil {
		return []check{{Name: "index/file symmetry", Status: "fail", Detail: err.Error()}}
	}

	var missing, missingLocal []string
	for _, e := range entries {
		machineID := ""
		if e.Origin != nil {
			machineID = e.Origin.MachineID
		}
		path := knowledge.DocumentPath(e.ID, machineID)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			missing = append(missing, knowledge.IndexKey(machineID, e.ID))
			if machineID == "" {
				missingLocal = append(missingLocal, e.ID)
			}
		}
	}
	if len(missing) == 0 {
		return []check{{Name: "index/file symmetry", Status: "pass"}}
	}

	repaired := false
	if repair {
		for _, id := range missingLocal {
			if err := store.Delete(id); err == nil {
				repaired = true
			}
		}
	}
	return []check{{
		Name:     "index/file symmetry",
		Status:   "fail",
		Detail:   fmt.Sprintf("%d index entries missing their backing file: %v", len(missing), missing),
		Repaired: repaired,
	}}
}

// checkDuplicateAgentIDs verifies invariant 3: unique sourceAgentId across
// local documents.
func checkDuplicateAgentIDs(store *knowledge.Store) check {
	entries, err := store.List(knowledge.Filter{Origin: "local"})
	if err != nil {
		return check{Name: "unique sourceAgentId", Status: "fail", Detail: err.Error()}
	}
	seen := make(map[string]string)
	var dupes []string
	for _, e := range entries {
		if e.SourceAgentID == "" {
			continue
		}
		if other, ok := seen[e.SourceAgentID]; ok {
			dupes = append(dupes, fmt.Sprintf("%s shared by %s and %s", e.SourceAgentID, other, e.ID))
			continue
		}
		seen[e.SourceAgentID] = e.ID
	}
	if len(dupes) == 0 {
		return check{Name: "unique sourceAgentId", Status: "pass"}
	}
	return check{Name: "unique sourceAgentId", Status: "fail", Detail: fmt.Sprintf("%v", dupes)}
}

// checkOrphanVectors verifies that every knowledge-type vector row
// references a document that still exists in the index, sweeping (with
// --repair) any row whose knowledge_id has no matching entry.
func checkOrphanVectors(store *knowledge.Store, db *vectorstore.DB, repair bool) check {
	rows, err := db.Conn().Query(`SELECT DISTINCT knowledge_id FROM vector_rows WHERE row_type = 'knowledge' AND knowledge_id != ''`)
	if err != nil {
		return check{Name: "orphan vector sweep", Status: "fail", Detail: err.Error()}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}

	entries, err := store.List(knowledge.Filter{})
	if err != nil {
		return check{Name: "orphan vector sweep", Status: "fail", Detail: err.Error()}
	}
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.ID] = true
	}
	var orphans []string
	for _, id := range ids {
		if !known[id] {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return check{Name: "orphan vector sweep", Status: "pass"}
	}

	repaired := false
	if repair {
		for _, id := range orphans {
			if _, err := db.Conn().Exec(`DELETE FROM vector_rows WHERE row_type = 'knowledge' AND knowledge_id = ?`, id); err == nil {
				repaired = true
			}
		}
	}
	return check{
		Name:     "orphan vector sweep",
		Status:   "fail",
		Detail:   fmt.Sprintf("%d orphaned knowledge ids in the vector store: %v", len(orphans), orphans),
		Repaired: repaired,
	}
}
