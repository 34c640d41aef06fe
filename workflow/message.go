package workflow

import "sort"

// Message is a payload in flight between two executors. SourceID is empty
// for the run input delivered to the start executor.
type Message struct {
	TargetID   string
	SourceID   string
	Payload    any
	ProducedAt int
}

// sortMessages orders a round's queue by target, then source. The sort is
// stable so messages from the same source keep their arrival order.
func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].TargetID != msgs[j].TargetID {
			return msgs[i].TargetID < msgs[j].TargetID
		}
		return msgs[i].SourceID < msgs[j].SourceID
	})
}

// fanInBuffer collects one generation of contributions for a FanIn target.
type fanInBuffer struct {
	generation int
	received   map[string]any
}

// fanInState holds every open buffer, per target, lowest generation first.
type fanInState struct {
	graph   *Graph
	buffers map[string][]*fanInBuffer
	next    map[string]int
}

func newFanInState(g *Graph) *fanInState {
	return &fanInState{
		graph:   g,
		buffers: make(map[string][]*fanInBuffer),
		next:    make(map[string]int),
	}
}

// deliver records a contribution and returns the ordered payload list when
// it completes a generation. A source contributing again before its
// generation fired feeds the next generation.
func (s *fanInState) deliver(msg Message) ([]any, bool) {
	edge, _ := s.graph.FanInEdge(msg.TargetID)
	bufs := s.buffers[msg.TargetID]

	var buf *fanInBuffer
	for _, b := range bufs {
		if _, ok := b.received[msg.SourceID]; !ok {
			buf = b
			break
		}
	}
	if buf == nil {
		buf = &fanInBuffer{generation: s.next[msg.TargetID], received: make(map[string]any)}
		s.next[msg.TargetID]++
		bufs = append(bufs, buf)
	}
	buf.received[msg.SourceID] = msg.Payload

	if len(buf.received) < len(edge.Sources) {
		s.buffers[msg.TargetID] = bufs
		return nil, false
	}

	// Only the oldest generation can complete first.
	ordered := make([]any, len(edge.Sources))
	for i, src := range edge.Sources {
		ordered[i] = buf.received[src]
	}
	s.buffers[msg.TargetID] = removeBuffer(bufs, buf)
	if len(s.buffers[msg.TargetID]) == 0 {
		delete(s.buffers, msg.TargetID)
	}
	return ordered, true
}

func removeBuffer(bufs []*fanInBuffer, target *fanInBuffer) []*fanInBuffer {
	out := bufs[:0]
	for _, b := range bufs {
		if b != target {
			out = append(out, b)
		}
	}
	return out
}

// pending reports the number of open buffers.
func (s *fanInState) pending() int {
	n := 0
	for _, bufs := range s.buffers {
		n += len(bufs)
	}
	return n
}

// records renders the open buffers in a deterministic order.
func (s *fanInState) records() []fanInSnapshot {
	targets := make([]string, 0, len(s.buffers))
	for t := range s.buffers {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	var out []fanInSnapshot
	for _, t := range targets {
		edge, _ := s.graph.FanInEdge(t)
		for _, b := range s.buffers[t] {
			snap := fanInSnapshot{targetID: t, generation: b.generation}
			for _, src := range edge.Sources {
				if p, ok := b.received[src]; ok {
					snap.sources = append(snap.sources, src)
					snap.payloads = append(snap.payloads, p)
				}
			}
			out = append(out, snap)
		}
	}
	return out
}

// restore loads buffers captured in a checkpoint.
func (s *fanInState) restore(snaps []fanInSnapshot) {
	for _, snap := range snaps {
		buf := &fanInBuffer{generation: snap.generation, received: make(map[string]any)}
		for i, src := range snap.sources {
			buf.received[src] = snap.payloads[i]
		}
		s.buffers[snap.targetID] = append(s.buffers[snap.targetID], buf)
		if snap.generation >= s.next[snap.targetID] {
			s.next[snap.targetID] = snap.generation + 1
		}
	}
	for t, bufs := range s.buffers {
		sort.SliceStable(bufs, func(i, j int) bool { return bufs[i].generation < bufs[j].generation })
		s.buffers[t] = bufs
	}
}

type fanInSnapshot struct {
	targetID   string
	generation int
	sources    []string
	payloads   []any
}
