package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/langmartai/lmassist/internal/retrieval"
)

// maxHookStdinBytes bounds how much of stdin a hook invocation will read,
// mirroring the teacher's runner guard against a runaway parent process.
const maxHookStdinBytes = 10 * 1024 * 1024

// hookInput is the JSON Claude Code writes to a lifecycle hook's stdin.
// Field names use snake_case to match Claude Code's wire format.
type hookInput struct {
	Prompt         string `json:"prompt,omitempty"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	HookEventName  string `json:"hook_event_name,omitempty"`
}

// hookOutput is the JSON a lifecycle hook writes back to stdout.
type hookOutput struct {
	HookSpecificOutput *hookSpecific `json:"hookSpecificOutput,omitempty"`
	SystemMessage      string        `json:"systemMessage,omitempty"`
}

type hookSpecific struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// hookEventName is the Claude Code event name this subcommand answers on
// behalf of: a prompt-submit hook only ever runs on UserPromptSubmit.
const hookEventName = "UserPromptSubmit"

func hookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook prompt-submit",
		Short: "Prompt-submit lifecycle hook: reads a HookInput envelope from stdin and writes suggested context to stdout",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "prompt-submit",
		Short: "Surface relevant knowledge and milestones into a new prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHookPromptSubmit()
		},
	})
	return cmd
}

func runHookPromptSubmit() error {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "lmassist: hook panic recovered: %v\n", r)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(os.Stdin, maxHookStdinBytes))
	if err != nil {
		return nil // a hook must never fail the assistant's turn
	}
	var in hookInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil
	}

	app, err := newAppContext(true)
	if err != nil {
		return writeHookOutput(hookOutput{})
	}
	defer app.Close()

	cwd, _ := os.Getwd()
	suggestion, err := retrieval.Suggest(app.DB, app.Store, app.Provider, retrieval.SuggestInput{
		Prompt:    in.Prompt,
		SessionID: in.SessionID,
		Project:   cwd,
	})
	if err != nil || suggestion.Context == "" {
		return writeHookOutput(hookOutput{})
	}

	return writeHookOutput(hookOutput{
		HookSpecificOutput: &hookSpecific{
			HookEventName:     hookEventName,
			AdditionalContext: suggestion.Context,
		},
	})
}

func writeHookOutput(out hookOutput) error {
	data, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
	return nil
}
