package life

import (
	"errors"
	"fmt"

	"github.com/gogpu/smoothlife/gpucore"
	"github.com/gogpu/smoothlife/internal/logging"
	"github.com/gogpu/smoothlife/internal/render"
)

// ErrBindGroupMissing is returned by Node.Run when a pass is due but no
// bind group was queued this frame.
var ErrBindGroupMissing = errors.New("life: bind group missing")

// NodeState is the stage of the compute pass lifecycle.
type NodeState int

const (
	// Loading waits for the init pipeline. Nothing is dispatched.
	Loading NodeState = iota
	// Init dispatches the init entry point every frame until the update
	// pipeline is ready.
	Init
	// Update dispatches the update entry point every frame.
	Update
)

// String returns the string representation of NodeState.
func (s NodeState) String() string {
	switch s {
	case Loading:
		return "Loading"
	case Init:
		return "Init"
	case Update:
		return "Update"
	default:
		return fmt.Sprintf("NodeState(%d)", int(s))
	}
}

// Node drives the SmoothLife compute pass in the render graph.
type Node struct {
	pipeline *Pipeline
	state    NodeState

	initRuns   int
	updateRuns int

	// reported holds pipelines whose failure has been logged.
	reported map[render.CachedComputePipelineID]error
}

// NewNode creates a node in the Loading state.
func NewNode(p *Pipeline) *Node {
	return &Node{pipeline: p, reported: make(map[render.CachedComputePipelineID]error)}
}

// State returns the node's current stage.
func (n *Node) State() NodeState { return n.state }

// InitRuns returns how many init passes the node recorded.
func (n *Node) InitRuns() int { return n.initRuns }

// UpdateRuns returns how many update passes the node recorded.
func (n *Node) UpdateRuns() int { return n.updateRuns }

// Update implements render.Node.
func (n *Node) Update(w *render.World) {
	switch n.state {
	case Loading:
		if n.ready(w, n.pipeline.InitPipeline) {
			n.state = Init
			logging.Logger().Info("life: init pipeline ready", "node", NodeLabel)
		}
	case Init:
		if n.ready(w, n.pipeline.UpdatePipeline) {
			n.state = Update
			logging.Logger().Info("life: update pipeline ready", "node", NodeLabel)
		}
	case Update:
	}
}

func (n *Node) ready(w *render.World, id render.CachedComputePipelineID) bool {
	st := w.Pipelines.GetComputePipelineState(id)
	switch st.State {
	case render.PipelineOk:
		delete(n.reported, id)
		return true
	case render.PipelineErr:
		if prev, ok := n.reported[id]; !ok || prev != st.Err {
			n.reported[id] = st.Err
			logging.Logger().Warn("life: pipeline unavailable", "node", NodeLabel, "state", n.state, "err", st.Err)
		}
	}
	return false
}

// Run implements render.Node.
func (n *Node) Run(ctx *render.RenderContext, w *render.World) error {
	var id render.CachedComputePipelineID
	switch n.state {
	case Loading:
		return nil
	case Init:
		id = n.pipeline.InitPipeline
	case Update:
		id = n.pipeline.UpdatePipeline
	}

	bg, ok := w.BindGroups.Get(BindGroupLabel)
	if !ok {
		return ErrBindGroupMissing
	}
	pipeline, ok := w.Pipelines.GetComputePipeline(id)
	if !ok {
		logging.Logger().Debug("life: pipeline not available, skipping pass", "state", n.state)
		return nil
	}

	p := n.pipeline
	enc := ctx.CommandEncoder()
	pass, err := enc.BeginComputePass(NodeLabel)
	if err != nil {
		return err
	}
	if err := pass.SetBindGroup(0, bg); err != nil {
		return err
	}
	if err := pass.SetPipeline(pipeline); err != nil {
		return err
	}
	err = pass.Dispatch(
		gpucore.WorkgroupCount(p.width, WorkgroupSize),
		gpucore.WorkgroupCount(p.height, WorkgroupSize),
		1,
	)
	if err != nil {
		return err
	}
	if err := pass.End(); err != nil {
		return err
	}
	if err := enc.CopyTextureToTexture(p.scratch, p.bound.texture, p.width, p.height); err != nil {
		return err
	}

	if n.state == Init {
		n.initRuns++
	} else {
		n.updateRuns++
		p.frame++
	}
	return nil
}

var _ render.Node = (*Node)(nil)
