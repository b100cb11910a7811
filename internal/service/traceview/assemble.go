package traceview

import (
	"fmt"

	"github.com/ashita-ai/tracelens/internal/model"
)

// WarningKind names a structural anomaly found while assembling a trace.
type WarningKind string

const (
	WarnDanglingParent  WarningKind = "dangling_parent"
	WarnDuplicateSpanID WarningKind = "duplicate_span_id"
	WarnCycle           WarningKind = "cycle"
	WarnSelfParent      WarningKind = "self_parent"
	WarnMissingSpanID   WarningKind = "missing_span_id"
	WarnMissingTraceID  WarningKind = "missing_trace_id"
)

// WarningKinds lists every anomaly kind.
var WarningKinds = []WarningKind{
	WarnDanglingParent,
	WarnDuplicateSpanID,
	WarnCycle,
	WarnSelfParent,
	WarnMissingSpanID,
	WarnMissingTraceID,
}

// Warning is a non-fatal data-quality problem. The assembler recovers from
// every anomaly and reports it here instead of failing.
type Warning struct {
	Kind         WarningKind `json:"kind"`
	TraceID      string      `json:"trace_id"`
	SpanID       string      `json:"span_id,omitempty"`
	ParentSpanID string      `json:"parent_span_id,omitempty"`
	Message      string      `json:"message"`
}

// Node wraps one input span with its resolved classification and its
// children in input order.
type Node struct {
	Span      model.Span    `json:"span"`
	Category  Category      `json:"category"`
	Outcome   Outcome       `json:"outcome"`
	Timing    Timing        `json:"timing"`
	Duration  string        `json:"duration"`
	Depth     int           `json:"depth"`
	Anomalies []WarningKind `json:"anomalies,omitempty"`
	Children  []*Node       `json:"children,omitempty"`
}

// IsRoot reports whether the node has no resolved parent.
func (n *Node) IsRoot() bool { return n.Depth == 0 }

func (n *Node) flag(kind WarningKind) {
	n.Anomalies = append(n.Anomalies, kind)
}

// Forest is the assembled structure of one trace.
type Forest struct {
	TraceID string  `json:"trace_id"`
	Roots   []*Node `json:"roots"`

	// Spans is the trace's partition of the input, in input order.
	Spans []model.Span `json:"-"`
}

// Size returns the number of nodes in the forest.
func (f Forest) Size() int { return len(f.Spans) }

// Walk visits every node depth-first, parents before children, in output
// order. It does not recurse, so arbitrarily deep chains are safe.
func (f Forest) Walk(fn func(*Node)) {
	stack := make([]*Node, 0, len(f.Roots))
	for i := len(f.Roots) - 1; i >= 0; i-- {
		stack = append(stack, f.Roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(n)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Assembly is the result of assembling a flat span collection: one forest
// per trace id, in first-seen order, plus every anomaly encountered.
type Assembly struct {
	Traces   []Forest  `json:"traces"`
	Warnings []Warning `json:"warnings"`
}

// Assemble partitions spans by trace id and reconstructs each trace's span
// forest from parent references. Every input span appears exactly once in
// the output. Spans whose parent is absent, unresolvable, themselves, or
// part of a cycle become roots; all but the first are flagged. The input
// is not modified or retained.
func Assemble(spans []model.Span) Assembly {
	var out Assembly
	if len(spans) == 0 {
		return out
	}

	order := make([]string, 0)
	parts := make(map[string][]model.Span)
	for _, s := range spans {
		if _, ok := parts[s.TraceID]; !ok {
			order = append(order, s.TraceID)
		}
		parts[s.TraceID] = append(parts[s.TraceID], s)
	}

	out.Traces = make([]Forest, 0, len(order))
	for _, traceID := range order {
		part := parts[traceID]
		if traceID == "" {
			out.Warnings = append(out.Warnings, Warning{
				Kind:    WarnMissingTraceID,
				Message: fmt.Sprintf("%d spans have no trace_id and were assembled together", len(part)),
			})
		}
		f, warnings := assembleTrace(traceID, part)
		out.Traces = append(out.Traces, f)
		out.Warnings = append(out.Warnings, warnings...)
	}
	return out
}

const noParent = -1

// assembleTrace builds the forest for spans sharing one trace id.
func assembleTrace(traceID string, spans []model.Span) (Forest, []Warning) {
	var warnings []Warning
	warn := func(n *Node, kind WarningKind, msg string) {
		n.flag(kind)
		warnings = append(warnings, Warning{
			Kind:         kind,
			TraceID:      traceID,
			SpanID:       n.Span.SpanID,
			ParentSpanID: n.Span.ParentSpanID,
			Message:      msg,
		})
	}

	nodes := make([]*Node, len(spans))
	index := make(map[string]int, len(spans))
	for i, s := range spans {
		t := SpanTiming(s)
		nodes[i] = &Node{
			Span:     s,
			Category: ClassifySpan(s),
			Outcome:  ResolveStatus(s.Status),
			Timing:   t,
			Duration: FormatSpanDuration(t),
		}
		if s.SpanID == "" {
			warn(nodes[i], WarnMissingSpanID, "span has no span_id and cannot be referenced as a parent")
			continue
		}
		if prev, dup := index[s.SpanID]; dup {
			warn(nodes[i], WarnDuplicateSpanID,
				fmt.Sprintf("span_id also used by input span %d; parent lookups resolve to the later span", prev))
		}
		index[s.SpanID] = i
	}

	parent := make([]int, len(spans))
	for i, s := range spans {
		parent[i] = noParent
		if s.ParentSpanID == "" {
			continue
		}
		if s.ParentSpanID == s.SpanID {
			warn(nodes[i], WarnSelfParent, "span lists itself as parent; treated as root")
			continue
		}
		j, ok := index[s.ParentSpanID]
		if !ok {
			warn(nodes[i], WarnDanglingParent, "parent span not found in trace; treated as root")
			continue
		}
		parent[i] = j
	}

	breakCycles(parent, func(i int) {
		warn(nodes[i], WarnCycle, "span is part of a parent cycle; promoted to root")
	})

	var f Forest
	f.TraceID = traceID
	f.Spans = spans
	for i, n := range nodes {
		if p := parent[i]; p == noParent {
			f.Roots = append(f.Roots, n)
		} else {
			nodes[p].Children = append(nodes[p].Children, n)
		}
	}

	queue := append([]*Node(nil), f.Roots...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, c := range n.Children {
			c.Depth = n.Depth + 1
			queue = append(queue, c)
		}
	}
	return f, warnings
}

// breakCycles walks every parent chain once. When a walk returns to a node
// already on its own path, that node is cut from its parent and promote is
// called with its index. Runs in O(n) without recursion.
func breakCycles(parent []int, promote func(int)) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]uint8, len(parent))
	path := make([]int, 0)
	for start := range parent {
		path = path[:0]
		cur := start
		for cur != noParent && state[cur] == unvisited {
			state[cur] = visiting
			path = append(path, cur)
			cur = parent[cur]
		}
		if cur != noParent && state[cur] == visiting {
			parent[cur] = noParent
			promote(cur)
		}
		for _, i := range path {
			state[i] = done
		}
	}
}
