package catalog

import (
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

// Entry is one curated topic loaded from YAML.
type Entry struct {
	Topic   string   `yaml:"topic"`
	Aliases []string `yaml:"aliases"`
	Summary string   `yaml:"summary"`
	// Starter topics are suggested to new learners on /start.
	Starter bool  `yaml:"starter"`
	Paths   Paths `yaml:"paths"`
}

// Paths lists node labels per mode, in unlock order.
type Paths struct {
	Standard []string `yaml:"standard"`
	Panic    []string `yaml:"panic"`
}

// Labels returns the node labels for a mode. Panic falls back to standard
// when no compressed path is curated.
func (e Entry) Labels(mode roadmap.Mode) []string {
	if mode == roadmap.ModePanic && len(e.Paths.Panic) > 0 {
		return e.Paths.Panic
	}
	return e.Paths.Standard
}
