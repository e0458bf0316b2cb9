package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// mcpClient describes where an AI client looks for MCP server definitions.
type mcpClient struct {
	name      string
	configDir string
	localFile string
}

var mcpClients = map[string]mcpClient{
	"qwen":   {name: "Qwen", configDir: ".qwen", localFile: "mcp.json"},
	"claude": {name: "Claude", configDir: ".claude", localFile: "settings.json"},
	"cursor": {name: "Cursor", configDir: ".cursor", localFile: "mcp.json"},
}

// SetupCmd configures MCP for various AI clients.
type SetupCmd struct {
	Qwen     bool   `help:"Configure for Qwen CLI"`
	Claude   bool   `help:"Configure for Claude Code"`
	Cursor   bool   `help:"Configure for Cursor"`
	Local    bool   `help:"Create project-local configuration"`
	Global   bool   `help:"Create global configuration"`
	Format   string `help:"Output format (json|text)" enum:"json,text" default:"json"`
	FilePath string `help:"Custom directory for the local configuration"`
}

// Run executes the setup command.
func (c *SetupCmd) Run(app *App) error {
	if c.Format != "json" && c.Format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Format)
	}

	var selected []string
	if c.Qwen {
		selected = append(selected, "qwen")
	}
	if c.Claude {
		selected = append(selected, "claude")
	}
	if c.Cursor {
		selected = append(selected, "cursor")
	}

	// Without a client the configuration goes to stdout.
	if len(selected) == 0 {
		content, err := renderConfig(generateMCPConfig(), c.Format)
		if err != nil {
			return err
		}
		if c.Format == "text" {
			app.printf("# Add this to your MCP client configuration:\n\n")
		}
		app.printf("%s", content)
		return nil
	}

	if !c.Local && !c.Global {
		c.Local = true
	}

	for _, key := range selected {
		if err := c.setupClient(app, mcpClients[key]); err != nil {
			return err
		}
	}
	return nil
}

func (c *SetupCmd) setupClient(app *App, client mcpClient) error {
	config := generateMCPConfig()

	if c.Global {
		globalPath := getGlobalConfigPath(client)
		if err := writeConfig(globalPath, config, c.Format); err != nil {
			return err
		}
		app.success("✓ Created global %s MCP config at %s", client.name, globalPath)
	}

	if c.Local {
		localPath := getLocalConfigPath(".", client)
		if c.FilePath != "" {
			localPath = filepath.Join(c.FilePath, client.localFile)
		}
		if err := writeConfig(localPath, config, c.Format); err != nil {
			return err
		}
		app.success("✓ Created local %s MCP config at %s", client.name, localPath)
	}

	return nil
}

func generateMCPConfig() map[string]any {
	return map[string]any{
		"mcpServers": map[string]any{
			"reelgraph": map[string]any{
				"command": "reelgraph",
				"args":    []string{"mcp", "--watch"},
			},
		},
	}
}

func getLocalConfigPath(basePath string, client mcpClient) string {
	return filepath.Join(basePath, client.configDir, "mcp.json")
}

func getGlobalConfigPath(client mcpClient) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, client.configDir, "global", "mcp.json")
}

func renderConfig(config map[string]any, format string) ([]byte, error) {
	if format == "json" {
		content, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling JSON: %w", err)
		}
		return append(content, '\n'), nil
	}

	keys := make([]string, 0, len(config))
	for key := range config {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		value, _ := json.Marshal(config[key])
		fmt.Fprintf(&sb, "%s: %s\n", key, value)
	}
	return []byte(sb.String()), nil
}

func writeConfig(configPath string, config map[string]any, format string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	content, err := renderConfig(config, format)
	if err != nil {
		return err
	}
	if format == "text" {
		content = append([]byte("# MCP Configuration for reelgraph\n# Generated by reelgraph setup\n\n"), content...)
	}

	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
