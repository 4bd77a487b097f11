// Package config loads lmassist configuration: built-in defaults, then
// {dataDir}/lmassist.toml, then environment variables, then CLI flags
// (flags are applied by cmd/lmassist after LoadConfig returns).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// VectorDim is the fixed embedding dimensionality used by the vector store.
// Changing it requires a full reindex (see vectorstore.DB.CheckEmbeddingMeta).
const VectorDim = 384

// Environment variable names (spec §6, "stable").
const (
	EnvDataDir   = "LM_ASSIST_DATA_DIR"
	EnvClaudeDir = "CLAUDE_CONFIG_DIR"
	EnvHubAPIKey = "TIER_AGENT_API_KEY"
	EnvHubURL    = "TIER_AGENT_HUB_URL"
)

// Resource limits from spec §5.
const (
	DocumentCacheCapacity = 100
	RelayBodyCapBytes     = 1_000_000
	RelayOuterTimeoutSecs = 30
	RelayInnerTimeoutSecs = 25
	ReviewerTimeoutSecs   = 180
	HubHTTPTimeoutSecs    = 5
)

// EmbeddingConfig configures the embedding provider (see internal/embedding).
type EmbeddingConfig struct {
	Provider   string `toml:"provider"` // "ollama" (default), "openai", "openai-compatible", "none"
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Dimensions int    `toml:"dimensions"`
}

// HTTPConfig configures the local HTTP surface.
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// HubConfig configures the relay/sync hub connection.
type HubConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// Config is the TOML-backed, mostly-static configuration layer.
type Config struct {
	Embedding EmbeddingConfig `toml:"embedding"`
	HTTP      HTTPConfig      `toml:"http"`
	Hub       HubConfig       `toml:"hub"`
	Machine   string          `toml:"machine"` // machine hostname override
	Verbose   bool            `toml:"verbose"`
}

// DefaultConfig returns built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "all-minilm",
			Dimensions: VectorDim,
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8971"},
	}
}

// LoadConfig loads the layered configuration: defaults, then
// {dataDir}/lmassist.toml if present, then environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	path := ConfigFilePath()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvHubURL); v != "" {
		cfg.Hub.URL = v
	}
	if v := os.Getenv(EnvHubAPIKey); v != "" {
		cfg.Hub.APIKey = v
	}
	if v := os.Getenv("LM_ASSIST_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("LM_ASSIST_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("LM_ASSIST_EMBED_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("LM_ASSIST_EMBED_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("LM_ASSIST_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("LM_ASSIST_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Verbose = b
		}
	}
}

// ConfigFilePath returns the path of the TOML config file.
func ConfigFilePath() string {
	return filepath.Join(DataDir(), "lmassist.toml")
}

// DataDir returns the root storage directory, honoring LM_ASSIST_DATA_DIR.
func DataDir() string {
	if v := os.Getenv(EnvDataDir); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".lmassist")
}

// KnowledgeDir returns {dataDir}/knowledge.
func KnowledgeDir() string {
	return filepath.Join(DataDir(), "knowledge")
}

// CommentsDir returns {dataDir}/knowledge/comments.
func CommentsDir() string {
	return filepath.Join(KnowledgeDir(), "comments")
}

// RemoteDir returns {dataDir}/knowledge/remote.
func RemoteDir() string {
	return filepath.Join(KnowledgeDir(), "remote")
}

// VectorStoreDir returns {dataDir}/lance-store (kept opaque; backed by SQLite
// + sqlite-vec rather than Lance, but the on-disk layout name is stable per
// spec §6).
func VectorStoreDir() string {
	return filepath.Join(DataDir(), "lance-store")
}

// VectorDBPath returns the SQLite file backing the vector store.
func VectorDBPath() string {
	return filepath.Join(VectorStoreDir(), "vectors.db")
}

// ArchitectureDir returns {dataDir}/architecture (source-scan caches; not
// populated by this module, but kept for layout compatibility).
func ArchitectureDir() string {
	return filepath.Join(DataDir(), "architecture")
}

// IndexPath returns the path of the knowledge index JSON file.
func IndexPath() string {
	return filepath.Join(KnowledgeDir(), "index.json")
}

// SettingsPath returns the path of the per-user settings JSON file.
func SettingsPath() string {
	return filepath.Join(KnowledgeDir(), "settings.json")
}

// PinnedPath returns the path of the pinned-documents JSON file.
func PinnedPath() string {
	return filepath.Join(KnowledgeDir(), "pinned.json")
}

// SessionsRoot returns the root directory under which the assistant writes
// per-session transcript files, honoring CLAUDE_CONFIG_DIR.
func SessionsRoot() string {
	if v := os.Getenv(EnvClaudeDir); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".claude")
}

// ProjectsDir returns the directory under which the assistant keeps one
// subdirectory per project, named by EncodeProjectPath.
func ProjectsDir() string {
	return filepath.Join(SessionsRoot(), "projects")
}

// EncodeProjectPath turns an absolute project path into a filesystem-safe,
// reversible directory name: "/" becomes a single "-", and a literal "-"
// is escaped as "--" so DecodeProjectPath can tell the two apart.
func EncodeProjectPath(path string) string {
	var b strings.Builder
	for _, r := range path {
		switch r {
		case '/':
			b.WriteByte('-')
		case '-':
			b.WriteString("--")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DecodeProjectPath reverses EncodeProjectPath.
func DecodeProjectPath(encoded string) string {
	var b strings.Builder
	runes := []rune(encoded)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '-' {
			b.WriteRune(r)
			continue
		}
		if i+1 < len(runes) && runes[i+1] == '-' {
			b.WriteByte('-')
			i++
			continue
		}
		b.WriteByte('/')
	}
	return b.String()
}

// EnsureDirs creates the on-disk layout's directories.
func EnsureDirs() error {
	for _, d := range []string{KnowledgeDir(), CommentsDir(), RemoteDir(), VectorStoreDir(), ArchitectureDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// Settings is the per-user context-injection configuration from spec §4.6,
// persisted to {dataDir}/knowledge/settings.json and mutable at runtime
// (unlike Config, which is process-start TOML/env configuration).
type Settings struct {
	ContextInjectKnowledge      bool `json:"contextInjectKnowledge"`
	ContextInjectMilestones     bool `json:"contextInjectMilestones"`
	ContextInjectKnowledgeCount int  `json:"contextInjectKnowledgeCount"`
	ContextInjectMilestoneCount int  `json:"contextInjectMilestoneCount"`
}

// Profile bundles Settings presets, mirroring the teacher's BuiltinProfiles.
type Profile struct {
	Name     string
	Settings Settings
}

// BuiltinProfiles are the named context-injection presets selectable via
// `lmassist config profile`.
var BuiltinProfiles = map[string]Profile{
	"minimal": {Name: "minimal", Settings: Settings{
		ContextInjectKnowledge: true, ContextInjectKnowledgeCount: 2,
	}},
	"default": {Name: "default", Settings: Settings{
		ContextInjectKnowledge: true, ContextInjectMilestones: true,
		ContextInjectKnowledgeCount: 5, ContextInjectMilestoneCount: 3,
	}},
	"thorough": {Name: "thorough", Settings: Settings{
		ContextInjectKnowledge: true, ContextInjectMilestones: true,
		ContextInjectKnowledgeCount: 12, ContextInjectMilestoneCount: 8,
	}},
}

// DefaultSettings returns the "default" profile's settings.
func DefaultSettings() Settings {
	return BuiltinProfiles["default"].Settings
}

// LoadSettings reads settings.json, falling back to defaults if absent or
// malformed (a malformed settings file degrades rather than blocking startup,
// per spec §7's ParseError recovery rule).
func LoadSettings() Settings {
	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		return DefaultSettings()
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return DefaultSettings()
	}
	return s
}

// SaveSettings writes settings.json atomically (write-temp, rename).
func SaveSettings(s Settings) error {
	if err := EnsureDirs(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(SettingsPath(), data)
}

// ApplyProfile sets settings.json to a named builtin profile.
func ApplyProfile(name string) error {
	p, ok := BuiltinProfiles[name]
	if !ok {
		return fmt.Errorf("unknown profile %q (known: minimal, default, thorough)", name)
	}
	return SaveSettings(p.Settings)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// MachineHostname returns the configured machine name, falling back to the
// OS hostname.
func MachineHostname(cfg *Config) string {
	if cfg != nil && cfg.Machine != "" {
		return cfg.Machine
	}
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// MachineOS returns a short OS identifier for remote-origin metadata.
func MachineOS() string {
	return runtime.GOOS
}

// SafeRelPath joins base and rel, rejecting paths that escape base via ".."
// components — used when resolving remote-document subpaths and relay
// static-asset paths.
func SafeRelPath(base, rel string) (string, bool) {
	rel = strings.TrimPrefix(rel, "/")
	cleaned := filepath.Clean(filepath.Join(base, rel))
	baseClean := filepath.Clean(base) + string(filepath.Separator)
	if !strings.HasPrefix(cleaned+string(filepath.Separator), baseClean) {
		return "", false
	}
	return cleaned, true
}

// MachineIdentityPath returns the path of this workstation's persisted hub
// identity (machineId + gatewayId), generated once on first use.
func MachineIdentityPath() string {
	return filepath.Join(DataDir(), "machine.json")
}

// MachineIdentity is this workstation's stable hub-facing identity. Remote
// sync compares both fields against a peer's identity to skip itself, since
// a single physical machine may register more than one gateway connection.
type MachineIdentity struct {
	MachineID string `json:"machineId"`
	GatewayID string `json:"gatewayId"`
}

// LoadMachineIdentity reads machine.json, generating and persisting a new
// identity on first use.
func LoadMachineIdentity() (MachineIdentity, error) {
	data, err := os.ReadFile(MachineIdentityPath())
	if err == nil {
		var id MachineIdentity
		if jsonErr := json.Unmarshal(data, &id); jsonErr == nil && id.MachineID != "" {
			return id, nil
		}
	}

	id := MachineIdentity{MachineID: uuid.NewString(), GatewayID: uuid.NewString()}
	if err := EnsureDirs(); err != nil {
		return MachineIdentity{}, err
	}
	data, err = json.MarshalIndent(id, "", "  ")
	if err != nil {
		return MachineIdentity{}, err
	}
	if err := writeFileAtomic(MachineIdentityPath(), data); err != nil {
		return MachineIdentity{}, err
	}
	return id, nil
}
