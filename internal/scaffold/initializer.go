// Package scaffold writes the starter files for a coordinated workspace.
package scaffold

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/dyluth/coordinator/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// MCPFile is the agent-host registration written by --mcp.
const MCPFile = ".mcp.json"

// Options controls what Initialize writes.
type Options struct {
	Dir   string // Target directory
	Host  string // Hub host written to coordinator.yml
	Port  int    // Hub port written to coordinator.yml
	MCP   bool   // Also write .mcp.json registering "coordinator mcp"
	Force bool   // Overwrite existing files
}

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize renders and writes the starter files, returning their paths.
// Existing files are an error unless Force is set.
func Initialize(opts Options) ([]string, error) {
	if opts.Host == "" {
		opts.Host = config.DefaultHost
	}
	if opts.Port == 0 {
		opts.Port = config.DefaultPort
	}

	files, err := renderFiles(opts)
	if err != nil {
		return nil, err
	}

	if !opts.Force {
		if err := CheckExisting(files); err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
		paths = append(paths, file.Path)
	}

	if err := validateCreatedFiles(files); err != nil {
		return nil, err
	}

	return paths, nil
}

func renderFiles(opts Options) ([]FileInfo, error) {
	data := struct {
		Host string
		Port int
		URL  string
	}{
		Host: opts.Host,
		Port: opts.Port,
		URL:  fmt.Sprintf("ws://%s:%d", opts.Host, opts.Port),
	}

	names := []string{config.DefaultPath}
	if opts.MCP {
		names = append(names, MCPFile)
	}

	files := make([]FileInfo, 0, len(names))
	for _, name := range names {
		tmplName := "templates/" + strings.TrimPrefix(name, ".") + ".tmpl"
		raw, err := templatesFS.ReadFile(tmplName)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", name, err)
		}

		tmpl, err := template.New(name).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", name, err)
		}

		files = append(files, FileInfo{
			Path:        filepath.Join(opts.Dir, name),
			Content:     buf.Bytes(),
			Permissions: 0644,
		})
	}

	return files, nil
}

// CheckExisting returns an error naming every file that would be overwritten.
func CheckExisting(files []FileInfo) error {
	var existing []string
	for _, file := range files {
		if _, err := os.Stat(file.Path); err == nil {
			existing = append(existing, filepath.Base(file.Path))
		}
	}

	switch len(existing) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("workspace already initialized: found existing %s", existing[0])
	default:
		return fmt.Errorf("workspace already initialized: found existing %s", strings.Join(existing, ", "))
	}
}

// validateCreatedFiles checks the written config loads and the MCP
// registration is valid JSON.
func validateCreatedFiles(files []FileInfo) error {
	for _, file := range files {
		switch filepath.Base(file.Path) {
		case config.DefaultPath:
			if _, err := config.Load(file.Path); err != nil {
				return fmt.Errorf("created %s is invalid: %w", config.DefaultPath, err)
			}
		case MCPFile:
			if !json.Valid(file.Content) {
				return fmt.Errorf("created %s is not valid JSON", MCPFile)
			}
		}
	}
	return nil
}

// PrintSuccess lists what was created and what to do next.
func PrintSuccess(w io.Writer, paths []string) {
	fmt.Fprintln(w, "\n✅ Workspace ready for coordination!")
	fmt.Fprintln(w, "\nCreated:")
	for _, p := range paths {
		fmt.Fprintf(w, "  ✓ %s\n", p)
	}
	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintln(w, "  1. Start the hub: coordinator serve")
	fmt.Fprintln(w, "  2. Register 'coordinator mcp' as an MCP server with each agent host")
	fmt.Fprintln(w, "  3. Have each agent call coordinator_join")
}
