package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"hedgehog-learn/internal/domain"
)

// Problem is a content file that could not be used.
type Problem struct {
	Path string
	Err  error
}

func (p Problem) Error() string {
	return p.Path + ": " + p.Err.Error()
}

var frontMatterDelim = []byte("---")

// splitFrontMatter separates a leading YAML block fenced by --- lines from the body.
// A document without front matter returns nil meta and the whole input.
func splitFrontMatter(data []byte) (meta []byte, body []byte, err error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	trimmed := bytes.TrimLeft(data, " \t")
	if !bytes.HasPrefix(trimmed, frontMatterDelim) {
		return nil, data, nil
	}
	rest := trimmed[len(frontMatterDelim):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return nil, data, nil
	}
	rest = rest[nl+1:]

	for off := 0; off <= len(rest); {
		end := bytes.IndexByte(rest[off:], '\n')
		var line []byte
		if end < 0 {
			line = rest[off:]
		} else {
			line = rest[off : off+end]
		}
		if bytes.Equal(bytes.TrimRight(line, " \t\r"), frontMatterDelim) {
			meta = rest[:off]
			if end < 0 {
				return meta, nil, nil
			}
			return meta, rest[off+end+1:], nil
		}
		if end < 0 {
			break
		}
		off += end + 1
	}
	return nil, nil, errors.New("front matter is not terminated")
}

// ParseModule reads a README with optional YAML front matter.
func ParseModule(data []byte) (domain.Module, error) {
	var m domain.Module
	meta, body, err := splitFrontMatter(data)
	if err != nil {
		return m, err
	}
	if len(meta) > 0 {
		if err := yaml.Unmarshal(meta, &m); err != nil {
			return m, fmt.Errorf("front matter: %w", err)
		}
	}
	m.Body = string(body)
	return m, nil
}

// LoadModules reads every modules/<dir>/README.md under dir. Directories
// without a readable README are returned as problems and skipped.
func LoadModules(dir string, log *zap.Logger) ([]domain.Module, []Problem, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var (
		mods     []domain.Module
		problems []Problem
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		readme := filepath.Join(dir, e.Name(), "README.md")
		data, err := os.ReadFile(readme)
		if err != nil {
			log.Warn("skipping module directory: no valid README.md", zap.String("dir", e.Name()))
			problems = append(problems, Problem{Path: readme, Err: err})
			continue
		}
		m, err := ParseModule(data)
		if err != nil {
			log.Warn("skipping module directory: invalid README.md", zap.String("dir", e.Name()), zap.Error(err))
			problems = append(problems, Problem{Path: readme, Err: err})
			continue
		}
		m.Dir = e.Name()
		if strings.TrimSpace(m.Slug) == "" {
			m.Slug = e.Name()
		}
		m.Slug = strings.ToLower(strings.TrimSpace(m.Slug))

		metaPath := filepath.Join(dir, e.Name(), "meta.json")
		if raw, err := os.ReadFile(metaPath); err == nil {
			var meta domain.ModuleMeta
			if err := json.Unmarshal(raw, &meta); err != nil {
				log.Warn("ignoring invalid meta.json", zap.String("dir", e.Name()), zap.Error(err))
			} else {
				m.Meta = &meta
			}
		}
		mods = append(mods, m)
	}
	return mods, problems, nil
}

// LoadCourses reads content/courses/*.json. A missing directory is empty.
func LoadCourses(dir string) ([]domain.Course, []Problem, error) {
	var out []domain.Course
	problems, err := loadJSONDir(dir, func(path string, data []byte) error {
		var c domain.Course
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		if missing := c.Missing(); len(missing) > 0 {
			return fmt.Errorf("missing required field: %s", strings.Join(missing, ", "))
		}
		c.SourceFile = filepath.Base(path)
		out = append(out, c)
		return nil
	})
	return out, problems, err
}

// LoadPathways reads content/pathways/*.json. A missing directory is empty.
func LoadPathways(dir string) ([]domain.Pathway, []Problem, error) {
	var out []domain.Pathway
	problems, err := loadJSONDir(dir, func(path string, data []byte) error {
		var p domain.Pathway
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if missing := p.Missing(); len(missing) > 0 {
			return fmt.Errorf("missing required field: %s", strings.Join(missing, ", "))
		}
		p.SourceFile = filepath.Base(path)
		out = append(out, p)
		return nil
	})
	return out, problems, err
}

func loadJSONDir(dir string, fn func(path string, data []byte) error) ([]Problem, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	var problems []Problem
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			err = fn(path, data)
		}
		if err != nil {
			problems = append(problems, Problem{Path: path, Err: err})
		}
	}
	return problems, nil
}

// ArchivedSlugs lists the lowercased directory names under the archive dir.
func ArchivedSlugs(dir string) map[string]bool {
	out := map[string]bool{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() {
			out[strings.ToLower(e.Name())] = true
		}
	}
	return out
}
