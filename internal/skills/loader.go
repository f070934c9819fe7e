// Package skills is a narrow collaborator over the on-disk skills
// directory (`<workspace>/skills/<name>/SKILL.md`), the filesystem side
// of which is an external concern per spec §1; this package only exposes
// what prompt composition and classification need — names and a short
// summary line — never the deployment mechanism itself.
package skills

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Info describes one discovered skill.
type Info struct {
	Name    string
	Summary string // first non-heading line of SKILL.md, if any
}

type Loader struct {
	dir string
}

func NewLoader(workspace string) *Loader {
	return &Loader{dir: filepath.Join(workspace, "skills")}
}

// List returns every skill directory containing a SKILL.md, sorted by name.
func (l *Loader) List() []Info {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	var out []Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(l.dir, e.Name(), "SKILL.md")
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		out = append(out, Info{Name: e.Name(), Summary: firstSummaryLine(f)})
		f.Close()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns just the skill names, used by the classification prompt.
func (l *Loader) Names() []string {
	infos := l.List()
	names := make([]string, 0, len(infos))
	for _, i := range infos {
		names = append(names, i.Name)
	}
	return names
}

func firstSummaryLine(f *os.File) string {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return ""
}

// BuildSummary renders one "- name: summary" line ("- name" when the
// summary is empty) per discovered skill, for prompt composition. It adds
// no section heading.
func (l *Loader) BuildSummary() string {
	infos := l.List()
	if len(infos) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, i := range infos {
		if i.Summary != "" {
			sb.WriteString("- " + i.Name + ": " + i.Summary + "\n")
		} else {
			sb.WriteString("- " + i.Name + "\n")
		}
	}
	return sb.String()
}
