package eliza

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed doctor.yaml
var defaultScript []byte

// Script is a parsed, validated rule set.
type Script struct {
	Pre      map[string]string   `yaml:"pre"`
	Post     map[string]string   `yaml:"post"`
	Synonyms map[string][]string `yaml:"synonyms"`
	Keys     []*Key              `yaml:"keys"`

	byWord map[string]*Key
}

// Key is one keyword and its decomposition rules.
type Key struct {
	Word    string    `yaml:"word"`
	Weight  int       `yaml:"weight"`
	Decomps []*Decomp `yaml:"decomps"`
}

// Decomp is one decomposition pattern with its reassembly templates.
type Decomp struct {
	Pattern string   `yaml:"pattern"`
	Reasmb  []string `yaml:"reasmb"`

	parts []string
	save  bool
}

// noneKey is consulted when no keyword matches and memory is empty.
const noneKey = "xnone"

// Default returns the embedded doctor script.
func Default() (*Script, error) {
	return Parse(defaultScript)
}

// LoadScript reads and parses the YAML script at path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eliza: read script %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML script.
func Parse(data []byte) (*Script, error) {
	s := &Script{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("eliza: parse yaml: %w", err)
	}
	if err := s.compile(); err != nil {
		return nil, fmt.Errorf("eliza: %w", err)
	}
	return s, nil
}

func (s *Script) compile() error {
	s.byWord = make(map[string]*Key, len(s.Keys))
	for i, k := range s.Keys {
		if k.Word == "" {
			return fmt.Errorf("keys[%d]: word is required", i)
		}
		if len(k.Decomps) == 0 {
			return fmt.Errorf("key %q: at least one decomp is required", k.Word)
		}
		for j, d := range k.Decomps {
			if len(d.Reasmb) == 0 {
				return fmt.Errorf("key %q decomps[%d]: reasmb is empty", k.Word, j)
			}
			pattern := d.Pattern
			if strings.HasPrefix(pattern, "$") {
				d.save = true
				pattern = strings.TrimPrefix(pattern, "$")
			}
			d.parts = strings.Fields(strings.ToLower(pattern))
			if len(d.parts) == 0 {
				return fmt.Errorf("key %q decomps[%d]: pattern is empty", k.Word, j)
			}
			for _, p := range d.parts {
				if strings.HasPrefix(p, "@") {
					if _, ok := s.Synonyms[p[1:]]; !ok {
						return fmt.Errorf("key %q: unknown synonym group %q", k.Word, p)
					}
				}
			}
		}
		s.byWord[strings.ToLower(k.Word)] = k
	}
	if _, ok := s.byWord[noneKey]; !ok {
		return fmt.Errorf("key %q is required", noneKey)
	}
	return nil
}

// keysFor returns the keys present in words, heaviest first. Ties keep the
// order in which the words appear.
func (s *Script) keysFor(words []string) []*Key {
	var keys []*Key
	seen := make(map[*Key]bool)
	for _, w := range words {
		if k, ok := s.byWord[w]; ok && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].Weight > keys[j].Weight })
	return keys
}

// inGroup reports whether word belongs to the synonym group named root.
func (s *Script) inGroup(root, word string) bool {
	if word == root {
		return true
	}
	for _, w := range s.Synonyms[root] {
		if w == word {
			return true
		}
	}
	return false
}
