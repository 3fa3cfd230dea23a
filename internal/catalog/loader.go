// Package catalog serves curated starter topics and offline roadmaps from a
// directory of YAML files. It backs roadmap fetches when the gateway is down.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

// Loader loads and caches catalog content from the filesystem.
type Loader struct {
	rootDir string
	entries map[string]Entry  // by roadmap.Key of topic and aliases
	notes   map[string]string // by roadmap.Key of topic
	mu      sync.RWMutex
}

// NewLoader creates a loader and reads every topic under rootDir.
// A missing directory yields an empty catalog.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		entries: make(map[string]Entry),
		notes:   make(map[string]string),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog loaded", "topics", len(l.Topics()))
	return l, nil
}

// Lookup finds an entry by topic name or alias.
func (l *Loader) Lookup(topic string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[roadmap.Key(topic)]
	return e, ok
}

// Roadmap builds the curated roadmap for a topic.
func (l *Loader) Roadmap(topic string, mode roadmap.Mode) (*roadmap.Roadmap, bool) {
	e, ok := l.Lookup(topic)
	if !ok {
		return nil, false
	}
	labels := e.Labels(mode)
	if len(labels) == 0 {
		return nil, false
	}
	rm := &roadmap.Roadmap{Topic: e.Topic, Mode: mode}
	for i, label := range labels {
		rm.Nodes = append(rm.Nodes, roadmap.Node{ID: roadmap.NodeID(strconv.Itoa(i + 1)), Label: label})
	}
	rm.Normalize()
	return rm, true
}

// Notes returns the study notes markdown for a topic.
func (l *Loader) Notes(topic string) (string, bool) {
	e, ok := l.Lookup(topic)
	if !ok {
		return "", false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.notes[roadmap.Key(e.Topic)]
	return n, ok
}

// Topics returns every distinct entry sorted by topic.
func (l *Loader) Topics() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]bool)
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		k := roadmap.Key(e.Topic)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// Starters returns the topics suggested to new learners.
func (l *Loader) Starters() []Entry {
	var out []Entry
	for _, e := range l.Topics() {
		if e.Starter {
			out = append(out, e)
		}
	}
	return out
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, ".notes.md"):
			return l.loadNotes(path)
		case strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml"):
			return l.loadEntry(path)
		}
		return nil
	})
}

func (l *Loader) loadEntry(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var e Entry
	if err := yaml.Unmarshal(data, &e); err != nil {
		slog.Warn("skipping invalid catalog YAML", "path", path, "error", err)
		return nil
	}

	e.Topic = roadmap.DisplayTopic(e.Topic)
	if e.Topic == "" {
		return nil // Not a catalog file
	}

	l.mu.Lock()
	l.entries[roadmap.Key(e.Topic)] = e
	for _, a := range e.Aliases {
		if k := roadmap.Key(a); k != "" {
			l.entries[k] = e
		}
	}
	l.mu.Unlock()

	return nil
}

func (l *Loader) loadNotes(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	yamlPath := strings.TrimSuffix(path, ".notes.md") + ".yaml"
	yamlData, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil // No matching YAML, skip
	}

	var partial struct {
		Topic string `yaml:"topic"`
	}
	if err := yaml.Unmarshal(yamlData, &partial); err != nil || strings.TrimSpace(partial.Topic) == "" {
		return nil
	}

	l.mu.Lock()
	l.notes[roadmap.Key(partial.Topic)] = string(data)
	l.mu.Unlock()

	return nil
}
