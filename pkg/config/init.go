package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const configHeader = `# cipherfs Configuration File
#
# Every option can be overridden with an environment variable:
#   CIPHERFS_<SECTION>_<KEY>, e.g. CIPHERFS_LOGGING_LEVEL=DEBUG
#
# The master key is deliberately absent. Provide it through the environment:
#   CIPHERFS_KEY_PASSPHRASE=... CIPHERFS_KEY_SALT=<at least 16 bytes>
# or
#   CIPHERFS_KEY_HEX=<64 hex characters>
`

// sectionComments are emitted above each top-level section.
var sectionComments = map[string]string{
	"logging":   "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, path)",
	"filetable": "Open-file registry and format of new files. max_closed closed files stay cached; eject_batch are evicted at once",
	"key":       "Master key source (prefer environment variables)",
	"store":     "Blob store holding encrypted objects: memory, filesystem, badger or s3",
	"root":      "Directory whose filesystem answers statfs (empty disables statfs)",
	"gc":        "Background sweeper evicting closed files",
	"metrics":   "Prometheus metrics exporter",
}

// InitConfig writes a sample configuration file to the default location
// and returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with a header and one
// comment per top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var node yaml.Node
	if err := node.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	// node is a mapping of alternating key and value nodes
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var b strings.Builder
	b.WriteString(configHeader)
	b.WriteString("\n")

	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return b.String(), nil
}
