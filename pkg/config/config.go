// Package config implements the INI-style repository configuration
// file: [section] and [section "subsection"] headers, key = value
// lines, # and ; comments, and case-insensitive keys.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Section identifies a config section, optionally with a subsection
// (e.g. [remote "origin"] has Name "remote", Sub "origin").
type Section struct {
	Name string
	Sub  string
}

// Config is an ordered set of sections, each holding case-insensitive
// keys mapped to their last-written value.
type Config struct {
	order    []Section
	sections map[Section]map[string]string
}

// New returns an empty Config.
func New() *Config {
	return &Config{sections: make(map[Section]map[string]string)}
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Get returns a key's raw string value and whether it was set.
func (c *Config) Get(section, sub, key string) (string, bool) {
	sec, ok := c.sections[Section{Name: section, Sub: sub}]
	if !ok {
		return "", false
	}
	v, ok := sec[normalizeKey(key)]
	return v, ok
}

// GetBool parses a key's value as a boolean: true/false/yes/no/on/off/1/0.
func (c *Config) GetBool(section, sub, key string, fallback bool) bool {
	v, ok := c.Get(section, sub, key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "on", "1":
		return true
	case "false", "no", "off", "0":
		return false
	default:
		return fallback
	}
}

// Set stores key = value under the given section/subsection, creating
// it if it doesn't already exist.
func (c *Config) Set(section, sub, key, value string) {
	s := Section{Name: section, Sub: sub}
	sec, ok := c.sections[s]
	if !ok {
		sec = make(map[string]string)
		c.sections[s] = sec
		c.order = append(c.order, s)
	}
	sec[normalizeKey(key)] = value
}

// Unset removes a key; it reports whether the key had been set.
func (c *Config) Unset(section, sub, key string) bool {
	sec, ok := c.sections[Section{Name: section, Sub: sub}]
	if !ok {
		return false
	}
	k := normalizeKey(key)
	if _, ok := sec[k]; !ok {
		return false
	}
	delete(sec, k)
	return true
}

// Subsections returns the subsection names present for a section name,
// e.g. every remote's name under [remote "..."].
func (c *Config) Subsections(section string) []string {
	var subs []string
	for _, s := range c.order {
		if s.Name == section && s.Sub != "" {
			subs = append(subs, s.Sub)
		}
	}
	sort.Strings(subs)
	return subs
}

// Parse reads an INI-style config from r.
func Parse(r io.Reader) (*Config, error) {
	cfg := New()
	scanner := bufio.NewScanner(r)

	var cur Section
	haveSection := false
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			sec, err := parseHeader(line)
			if err != nil {
				return nil, fmt.Errorf("config: line %d: %w", lineNo, err)
			}
			cur = sec
			haveSection = true
			if _, ok := cfg.sections[cur]; !ok {
				cfg.sections[cur] = make(map[string]string)
				cfg.order = append(cfg.order, cur)
			}
			continue
		}

		if !haveSection {
			return nil, fmt.Errorf("config: line %d: key outside any section", lineNo)
		}

		key, value, err := parseKeyValue(line)
		if err != nil {
			return nil, fmt.Errorf("config: line %d: %w", lineNo, err)
		}
		cfg.sections[cur][normalizeKey(key)] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func parseHeader(line string) (Section, error) {
	if !strings.HasSuffix(line, "]") {
		return Section{}, fmt.Errorf("malformed section header %q", line)
	}
	body := line[1 : len(line)-1]

	if i := strings.IndexByte(body, '"'); i >= 0 {
		name := strings.TrimSpace(body[:i])
		rest := body[i+1:]
		end := strings.LastIndexByte(rest, '"')
		if end < 0 {
			return Section{}, fmt.Errorf("malformed subsection header %q", line)
		}
		return Section{Name: strings.ToLower(name), Sub: rest[:end]}, nil
	}
	return Section{Name: strings.ToLower(strings.TrimSpace(body))}, nil
}

func parseKeyValue(line string) (string, string, error) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", fmt.Errorf("malformed key-value line %q", line)
	}
	key := strings.TrimSpace(line[:i])
	value := strings.TrimSpace(line[i+1:])
	if key == "" {
		return "", "", fmt.Errorf("empty key in %q", line)
	}
	return key, value, nil
}

// Encode serializes the config back to INI form, sections in insertion
// order and keys sorted within each section for deterministic output.
func Encode(cfg *Config) []byte {
	var buf bytes.Buffer
	for _, sec := range cfg.order {
		if sec.Sub == "" {
			fmt.Fprintf(&buf, "[%s]\n", sec.Name)
		} else {
			fmt.Fprintf(&buf, "[%s %q]\n", sec.Name, sec.Sub)
		}

		keys := make([]string, 0, len(cfg.sections[sec]))
		for k := range cfg.sections[sec] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, "\t%s = %s\n", k, cfg.sections[sec][k])
		}
	}
	return buf.Bytes()
}

// ReadFile loads a config file; a missing file yields an empty Config.
func ReadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// WriteFile atomically writes cfg to path via temp file + rename.
func WriteFile(path string, cfg *Config) error {
	data := Encode(cfg)
	dir := dirOf(path)

	tmp, err := os.CreateTemp(dir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}

func dirOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "."
	}
	return path[:i]
}

// ParseBoolString is exported for CLI flag parsing that needs the same
// boolean vocabulary as the config file.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("config: not a boolean: %q", s)
	}
}
