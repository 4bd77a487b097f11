package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/langmartai/lmassist/internal/cli"
)

func pinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Keep a document at the top of list output and in the document cache",
		Long: `Pin important knowledge documents so they list first and are exempt
from the document cache's LRU eviction. Pins do not change which documents
context suggestions include.

  lmassist pin K004          Pin a document
  lmassist pin list          Show all pinned documents
  lmassist pin remove K004   Unpin a document`,
	}

	cmd.AddCommand(pinAddCmd())
	cmd.AddCommand(pinListCmd())
	cmd.AddCommand(pinRemoveCmd())

	// Allow `lmassist pin <id>` as shorthand for `lmassist pin add <id>`.
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return runPinAdd(args[0])
		}
		return cmd.Help()
	}
	cmd.Args = cobra.ArbitraryArgs

	return cmd
}

func pinAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <id>",
		Short: "Pin a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPinAdd(args[0])
		},
	}
}

func pinListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show all pinned documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPinList()
		},
	}
}

func pinRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Unpin a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPinRemove(args[0])
		},
	}
}

func runPinAdd(id string) error {
	app, err := newAppContext(false)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Store.IsPinned(id) {
		cli.Footer(fmt.Sprintf("already pinned: %s", id))
		return nil
	}
	if err := app.Store.Pin(id); err != nil {
		return err
	}
	cli.Footer(fmt.Sprintf("pinned %s", id))
	return nil
}

func runPinList() error {
	app, err := newAppContext(false)
	if err != nil {
		return err
	}
	defer app.Close()

	entries, err := app.Store.ListPinned()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("  No pinned documents.")
		cli.Footer("pin one with: lmassist pin <id>")
		return nil
	}

	cli.Header("Pinned documents")
	for _, e := range entries {
		fmt.Printf("  %-6s %s\n", e.ID, e.Title)
	}
	cli.Footer(fmt.Sprintf("%d pinned document(s)", len(entries)))
	return nil
}

func runPinRemove(id string) error {
	app, err := newAppContext(false)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Store.Unpin(id); err != nil {
		return err
	}
	cli.Footer(fmt.Sprintf("unpinned %s", id))
	return nil
}
