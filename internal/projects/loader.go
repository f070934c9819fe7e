// Package projects is a narrow collaborator that discovers and loads
// per-project role instructions, used by prompt composition (active-project
// instructions) and the heartbeat loop's per-project checklist merge.
package projects

import (
	"os"
	"path/filepath"
	"strings"
)

// Info describes one discovered project directory.
type Info struct {
	Name        string
	Path        string
	HasRole     bool
	HasHeartbeat bool
}

// Loader scans `<workspace>/projects/<name>/` for ROLE.md and optional
// HEARTBEAT.md files.
type Loader struct {
	projectsDir string
}

func NewLoader(workspace string) *Loader {
	return &Loader{projectsDir: filepath.Join(workspace, "projects")}
}

// List returns every project directory that contains a ROLE.md.
func (l *Loader) List() []Info {
	entries, err := os.ReadDir(l.projectsDir)
	if err != nil {
		return nil
	}

	var projects []Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(l.projectsDir, e.Name())
		rolePath := filepath.Join(dir, "ROLE.md")
		if _, err := os.Stat(rolePath); err != nil {
			continue
		}
		_, hbErr := os.Stat(filepath.Join(dir, "HEARTBEAT.md"))
		projects = append(projects, Info{
			Name:         e.Name(),
			Path:         dir,
			HasRole:      true,
			HasHeartbeat: hbErr == nil,
		})
	}
	return projects
}

// Exists reports whether a project with the given name has a ROLE.md.
func (l *Loader) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(l.projectsDir, name, "ROLE.md"))
	return err == nil
}

// Role returns a project's ROLE.md contents.
func (l *Loader) Role(name string) (string, bool) {
	content, err := os.ReadFile(filepath.Join(l.projectsDir, name, "ROLE.md"))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(content)), true
}

// Heartbeat returns a project's HEARTBEAT.md checklist contents, if any.
func (l *Loader) Heartbeat(name string) (string, bool) {
	content, err := os.ReadFile(filepath.Join(l.projectsDir, name, "HEARTBEAT.md"))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(content)), true
}

// Dir returns the base projects directory path.
func (l *Loader) Dir() string { return l.projectsDir }
