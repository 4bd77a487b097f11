package knowledge

import (
	"path/filepath"
	"regexp"

	"github.com/langmartai/lmassist/internal/config"
)

// unsafePathChars matches characters not safe to embed directly in a
// machine-ID directory name (keeps remote subdirectories filesystem-safe
// across OSes without needing full percent-encoding).
var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// EncodeMachineDir turns a machine ID into a safe directory-name component.
func EncodeMachineDir(machineID string) string {
	return unsafePathChars.ReplaceAllString(machineID, "_")
}

// DocumentPath returns the on-disk Markdown file path for a document: local
// documents live directly under the knowledge directory; remote ones live
// under a per-machine subdirectory.
func DocumentPath(id, machineID string) string {
	if machineID == "" {
		return filepath.Join(config.KnowledgeDir(), id+".md")
	}
	return filepath.Join(config.RemoteDir(), EncodeMachineDir(machineID), id+".md")
}

// CommentsPath returns the on-disk JSON file path for a document's comments.
func CommentsPath(id, machineID string) string {
	key := id
	if machineID != "" {
		key = EncodeMachineDir(machineID) + "_" + id
	}
	return filepath.Join(config.CommentsDir(), key+".json")
}
