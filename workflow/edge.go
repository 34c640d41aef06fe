package workflow

import (
	"fmt"
	"strings"
)

// EdgeKind is the routing behaviour of an edge.
type EdgeKind int

const (
	// EdgeDirect connects one source to one target.
	EdgeDirect EdgeKind = iota
	// EdgeFanOut broadcasts a source's output to several targets.
	EdgeFanOut
	// EdgeFanIn is a barrier: the target runs once every source contributed.
	EdgeFanIn
)

// String returns the kind name.
func (k EdgeKind) String() string {
	switch k {
	case EdgeDirect:
		return "direct"
	case EdgeFanOut:
		return "fan_out"
	case EdgeFanIn:
		return "fan_in"
	default:
		return fmt.Sprintf("edge_kind(%d)", int(k))
	}
}

// Edge is a declared connection between executors.
type Edge struct {
	Kind    EdgeKind
	Sources []string
	Targets []string
}

// String renders the edge for logs and validation messages.
func (e Edge) String() string {
	return fmt.Sprintf("%s[%s -> %s]", e.Kind, strings.Join(e.Sources, ","), strings.Join(e.Targets, ","))
}

// key identifies an edge for duplicate detection.
func (e Edge) key() string {
	return e.Kind.String() + "|" + strings.Join(e.Sources, ",") + "|" + strings.Join(e.Targets, ",")
}
