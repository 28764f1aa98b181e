// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"fmt"

	"github.com/gogpu/smoothlife/gpucore"
)

// Graph errors.
var (
	// ErrDuplicateNode is returned when a label is added twice.
	ErrDuplicateNode = errors.New("render: duplicate node")

	// ErrUnknownNode is returned for edges naming a label never added.
	ErrUnknownNode = errors.New("render: unknown node")

	// ErrGraphCycle is returned when node edges form a cycle.
	ErrGraphCycle = errors.New("render: graph has a cycle")
)

// Node is a unit of work in the render graph.
type Node interface {
	// Update advances node state. It runs for every node before any Run.
	Update(w *World)

	// Run records the node's commands for this frame.
	Run(ctx *RenderContext, w *World) error
}

// NodeRunError reports the node that failed a graph run.
type NodeRunError struct {
	Label string
	Err   error
}

func (e *NodeRunError) Error() string {
	return fmt.Sprintf("render: node %q: %v", e.Label, e.Err)
}

func (e *NodeRunError) Unwrap() error { return e.Err }

// RenderContext carries the frame's command encoder to nodes.
type RenderContext struct {
	adapter gpucore.GPUAdapter
	encoder *gpucore.CommandEncoder
}

// NewRenderContext creates a context with a fresh command encoder.
func NewRenderContext(adapter gpucore.GPUAdapter, label string) *RenderContext {
	return &RenderContext{adapter: adapter, encoder: gpucore.NewCommandEncoder(label)}
}

// Adapter returns the adapter commands are submitted to.
func (c *RenderContext) Adapter() gpucore.GPUAdapter { return c.adapter }

// CommandEncoder returns the frame's encoder.
func (c *RenderContext) CommandEncoder() *gpucore.CommandEncoder { return c.encoder }

// Finish finishes the encoder and submits it. An encoder with no recorded
// commands is not submitted.
func (c *RenderContext) Finish() error {
	if err := c.encoder.Finish(); err != nil {
		return err
	}
	cmds, err := c.encoder.Commands()
	if err != nil {
		return err
	}
	if len(cmds) == 0 {
		return nil
	}
	return c.adapter.Submit(c.encoder)
}

// Graph orders nodes by their edges. Nodes without an edge between them
// keep insertion order.
type Graph struct {
	labels []string
	nodes  map[string]Node
	edges  map[string][]string
	order  []string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]Node), edges: make(map[string][]string)}
}

// AddNode adds node under label.
func (g *Graph) AddNode(label string, node Node) error {
	if _, ok := g.nodes[label]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, label)
	}
	g.labels = append(g.labels, label)
	g.nodes[label] = node
	g.order = nil
	return nil
}

// AddNodeEdge makes from run before to.
func (g *Graph) AddNodeEdge(from, to string) error {
	for _, l := range [2]string{from, to} {
		if _, ok := g.nodes[l]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownNode, l)
		}
	}
	g.edges[from] = append(g.edges[from], to)
	g.order = nil
	return nil
}

// Node returns the node added under label.
func (g *Graph) Node(label string) (Node, bool) {
	n, ok := g.nodes[label]
	return n, ok
}

// Order returns the labels in execution order.
func (g *Graph) Order() ([]string, error) {
	if g.order != nil {
		return g.order, nil
	}

	indegree := make(map[string]int, len(g.labels))
	for _, to := range g.edges {
		for _, l := range to {
			indegree[l]++
		}
	}

	order := make([]string, 0, len(g.labels))
	placed := make(map[string]bool, len(g.labels))
	for len(order) < len(g.labels) {
		progressed := false
		for _, l := range g.labels {
			if placed[l] || indegree[l] > 0 {
				continue
			}
			placed[l] = true
			order = append(order, l)
			for _, to := range g.edges[l] {
				indegree[to]--
			}
			progressed = true
		}
		if !progressed {
			return nil, ErrGraphCycle
		}
	}

	g.order = order
	return order, nil
}

// Update calls Update on every node in order.
func (g *Graph) Update(w *World) error {
	order, err := g.Order()
	if err != nil {
		return err
	}
	for _, l := range order {
		g.nodes[l].Update(w)
	}
	return nil
}

// Run runs every node in order. The first failing node stops the run.
func (g *Graph) Run(ctx *RenderContext, w *World) error {
	order, err := g.Order()
	if err != nil {
		return err
	}
	for _, l := range order {
		if err := g.nodes[l].Run(ctx, w); err != nil {
			return &NodeRunError{Label: l, Err: err}
		}
	}
	return nil
}
