package workflow

// Graph is the immutable topology of a workflow. It is produced by
// WorkflowBuilder.Build and never changes afterwards.
type Graph struct {
	start     string
	executors map[string]Executor
	order     []string
	edges     []Edge

	// outbound lists every executor a source forwards to, in declaration
	// order. FanIn targets are included once per FanIn edge.
	outbound map[string][]string
	// fanIn maps a FanIn target to its edge.
	fanIn map[string]Edge
}

func newGraph() *Graph {
	return &Graph{
		executors: make(map[string]Executor),
		outbound:  make(map[string][]string),
		fanIn:     make(map[string]Edge),
	}
}

// StartExecutor returns the id of the start executor.
func (g *Graph) StartExecutor() string {
	return g.start
}

// Executor returns the executor registered under id.
func (g *Graph) Executor(id string) (Executor, bool) {
	exec, ok := g.executors[id]
	return exec, ok
}

// ExecutorIDs returns executor ids in declaration order.
func (g *Graph) ExecutorIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Edges returns the declared edges.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Targets returns the executors that receive id's forwarded payloads.
func (g *Graph) Targets(id string) []string {
	return g.outbound[id]
}

// FanInEdge returns the FanIn edge targeting id, if any.
func (g *Graph) FanInEdge(id string) (Edge, bool) {
	e, ok := g.fanIn[id]
	return e, ok
}

// IsFanInTarget reports whether id sits behind a FanIn barrier.
func (g *Graph) IsFanInTarget(id string) bool {
	_, ok := g.fanIn[id]
	return ok
}

// index derives the routing tables from the declared edges.
func (g *Graph) index() {
	for _, e := range g.edges {
		switch e.Kind {
		case EdgeDirect, EdgeFanOut:
			src := e.Sources[0]
			g.outbound[src] = append(g.outbound[src], e.Targets...)
		case EdgeFanIn:
			target := e.Targets[0]
			g.fanIn[target] = e
			for _, src := range e.Sources {
				g.outbound[src] = append(g.outbound[src], target)
			}
		}
	}
}
