// Package corpus loads conversation corpora and trains a statement store
// from them.
//
// A corpus file is YAML in the chatterbot-corpus layout:
//
//	categories:
//	- greetings
//	conversations:
//	- - Hello
//	  - Hi there!
package corpus

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data
var builtin embed.FS

// Corpus is one parsed corpus file.
type Corpus struct {
	Name          string
	Categories    []string
	Conversations [][]string
}

type corpusFile struct {
	Categories    []string   `yaml:"categories"`
	Conversations [][]string `yaml:"conversations"`
}

// Parse decodes a single YAML corpus document.
func Parse(name string, b []byte) (Corpus, error) {
	var f corpusFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Corpus{}, fmt.Errorf("failed to parse corpus %s: %w", name, err)
	}
	c := Corpus{Name: name, Categories: f.Categories}
	for _, conv := range f.Conversations {
		lines := make([]string, 0, len(conv))
		for _, line := range conv {
			if s := strings.TrimSpace(line); s != "" {
				lines = append(lines, s)
			}
		}
		if len(lines) > 0 {
			c.Conversations = append(c.Conversations, lines)
		}
	}
	return c, nil
}

// Load returns the built-in corpora for name. Accepted forms are "english",
// "english.greetings" and the dotted "chatterbot.corpus.english".
func Load(name string) ([]Corpus, error) {
	sub, err := fs.Sub(builtin, "data")
	if err != nil {
		return nil, err
	}
	return loadFS(sub, name)
}

// LoadDir reads every .yml/.yaml file under dir.
func LoadDir(dir string) ([]Corpus, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("corpus dir: %w", err)
	}
	return loadTree(os.DirFS(dir), ".", path.Base(dir))
}

func loadFS(fsys fs.FS, name string) ([]Corpus, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "chatterbot.corpus.")
	if name == "" {
		return nil, fmt.Errorf("corpus name is required")
	}
	p := strings.ReplaceAll(name, ".", "/")

	for _, ext := range []string{".yml", ".yaml"} {
		if b, err := fs.ReadFile(fsys, p+ext); err == nil {
			c, err := Parse(name, b)
			if err != nil {
				return nil, err
			}
			return []Corpus{c}, nil
		}
	}

	info, err := fs.Stat(fsys, p)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("unknown corpus %q", name)
	}
	return loadTree(fsys, p, name)
}

// loadTree parses all corpus files below root, naming each "<prefix>.<file>".
func loadTree(fsys fs.FS, root, prefix string) ([]Corpus, error) {
	var out []Corpus
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := path.Ext(p)
		if d.IsDir() || (ext != ".yml" && ext != ".yaml") {
			return nil
		}
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		rel := p
		if root != "." {
			rel = strings.TrimPrefix(p, root+"/")
		}
		name := prefix + "." + strings.ReplaceAll(strings.TrimSuffix(rel, ext), "/", ".")
		c, err := Parse(name, b)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no corpus files found in %s", prefix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
