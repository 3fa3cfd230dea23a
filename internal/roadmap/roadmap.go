// Package roadmap holds generated learning roadmaps and decides which of
// their nodes a learner may open.
package roadmap

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Mode is the difficulty mode a roadmap was generated for.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModePanic    Mode = "panic" // compressed path for last-minute revision
)

// ParseMode returns ModeStandard for anything it does not recognise.
func ParseMode(s string) Mode {
	if Key(s) == string(ModePanic) {
		return ModePanic
	}
	return ModeStandard
}

// NodeID accepts both string and numeric ids from the gateway.
type NodeID string

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = NodeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("node id must be a string or number: %w", err)
	}
	*id = NodeID(n.String())
	return nil
}

// Node is one step of a roadmap.
type Node struct {
	ID    NodeID `json:"id"`
	Label string `json:"label"`
}

// Roadmap is an ordered sequence of nodes; order is the unlock sequence.
type Roadmap struct {
	Topic string `json:"topic"`
	Mode  Mode   `json:"mode,omitempty"`
	Nodes []Node `json:"nodes"`
}

// Index returns the position of the node with the given label, or -1.
func (r *Roadmap) Index(label string) int {
	k := Key(label)
	for i, n := range r.Nodes {
		if Key(n.Label) == k {
			return i
		}
	}
	return -1
}

// Fallback is the single-node roadmap used when nothing else is available.
func Fallback(topic string, mode Mode) *Roadmap {
	display := DisplayTopic(topic)
	return &Roadmap{
		Topic: display,
		Mode:  mode,
		Nodes: []Node{{ID: "1", Label: display + " Basics"}},
	}
}

// Normalize fills in missing ids and trims labels in place.
func (r *Roadmap) Normalize() {
	r.Topic = DisplayTopic(r.Topic)
	for i := range r.Nodes {
		r.Nodes[i].Label = strings.TrimSpace(r.Nodes[i].Label)
		if r.Nodes[i].ID == "" {
			r.Nodes[i].ID = NodeID(strconv.Itoa(i + 1))
		}
	}
}
