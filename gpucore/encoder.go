package gpucore

import (
	"errors"
	"fmt"
	"sync"
)

// Command recording errors.
var (
	// ErrComputePassEnded is returned when operations are called on an ended compute pass.
	ErrComputePassEnded = errors.New("gpucore: compute pass has already ended")

	// ErrComputePassOpen is returned when the encoder is used while a pass is still recording.
	ErrComputePassOpen = errors.New("gpucore: a compute pass is still recording")

	// ErrEncoderFinished is returned when a finished encoder is recorded into.
	ErrEncoderFinished = errors.New("gpucore: command encoder is finished")

	// ErrEncoderNotFinished is returned when an unfinished encoder is submitted.
	ErrEncoderNotFinished = errors.New("gpucore: command encoder is not finished")

	// ErrNilComputePipeline is returned when SetPipeline is called with an invalid ID.
	ErrNilComputePipeline = errors.New("gpucore: compute pipeline is invalid")

	// ErrNilComputeBindGroup is returned when SetBindGroup is called with an invalid ID.
	ErrNilComputeBindGroup = errors.New("gpucore: bind group is invalid")

	// ErrComputeBindGroupIndexOutOfRange is returned when bind group index exceeds maximum.
	ErrComputeBindGroupIndexOutOfRange = errors.New("gpucore: bind group index exceeds maximum (3)")

	// ErrNoPipelineBound is returned when Dispatch is called before SetPipeline.
	ErrNoPipelineBound = errors.New("gpucore: dispatch without a compute pipeline")

	// ErrWorkgroupCountZero is returned when any workgroup dimension is zero.
	ErrWorkgroupCountZero = errors.New("gpucore: workgroup count must be greater than zero")

	// ErrInvalidCopy is returned for a texture copy with invalid textures or size.
	ErrInvalidCopy = errors.New("gpucore: invalid texture copy")
)

// ComputePassState represents the state of a compute pass encoder.
type ComputePassState int

const (
	// ComputePassStateRecording means the pass is actively recording commands.
	ComputePassStateRecording ComputePassState = iota

	// ComputePassStateEnded means the pass has been ended.
	ComputePassStateEnded
)

// String returns the string representation of ComputePassState.
func (s ComputePassState) String() string {
	switch s {
	case ComputePassStateRecording:
		return "Recording"
	case ComputePassStateEnded:
		return "Ended"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// DispatchCommand is one recorded dispatch with the state bound at the time
// it was recorded.
type DispatchCommand struct {
	Pipeline   ComputePipelineID
	BindGroups [MaxBindGroups]BindGroupID
	X, Y, Z    uint32
}

// PassCommands is the recorded content of one compute pass.
type PassCommands struct {
	Label      string
	Dispatches []DispatchCommand
}

// TextureCopy copies a width x height region from the origin of Src to the
// origin of Dst.
type TextureCopy struct {
	Src, Dst      TextureID
	Width, Height uint32
}

// Command is one encoder command. Exactly one field is set.
type Command struct {
	Pass *PassCommands
	Copy *TextureCopy
}

// CommandEncoder records compute passes and copies for a single submission.
//
// Recording is backend independent: adapters replay the finished command
// list in order at Submit time. A CommandEncoder is not reusable after
// Finish.
type CommandEncoder struct {
	mu       sync.Mutex
	label    string
	commands []Command
	open     *ComputePassEncoder
	finished bool
}

// NewCommandEncoder creates an empty command encoder.
func NewCommandEncoder(label string) *CommandEncoder {
	return &CommandEncoder{label: label}
}

// Label returns the encoder's debug label.
func (e *CommandEncoder) Label() string {
	return e.label
}

// BeginComputePass begins a compute pass. The pass must be ended before the
// encoder records anything else.
func (e *CommandEncoder) BeginComputePass(label string) (*ComputePassEncoder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finished {
		return nil, ErrEncoderFinished
	}
	if e.open != nil {
		return nil, ErrComputePassOpen
	}

	p := &ComputePassEncoder{encoder: e, cmds: &PassCommands{Label: label}}
	e.open = p
	return p, nil
}

// CopyTextureToTexture records a texture copy.
func (e *CommandEncoder) CopyTextureToTexture(src, dst TextureID, width, height uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finished {
		return ErrEncoderFinished
	}
	if e.open != nil {
		return ErrComputePassOpen
	}
	if src == InvalidID || dst == InvalidID || src == dst || width == 0 || height == 0 {
		return fmt.Errorf("%w: %d -> %d (%dx%d)", ErrInvalidCopy, src, dst, width, height)
	}

	e.commands = append(e.commands, Command{Copy: &TextureCopy{Src: src, Dst: dst, Width: width, Height: height}})
	return nil
}

// Finish closes the encoder for recording and makes it submittable.
func (e *CommandEncoder) Finish() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finished {
		return ErrEncoderFinished
	}
	if e.open != nil {
		return ErrComputePassOpen
	}
	e.finished = true
	return nil
}

// Finished reports whether Finish has been called.
func (e *CommandEncoder) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}

// Commands returns the recorded commands of a finished encoder.
func (e *CommandEncoder) Commands() ([]Command, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.finished {
		return nil, ErrEncoderNotFinished
	}
	return e.commands, nil
}

// DispatchCount returns the number of dispatches recorded so far.
func (e *CommandEncoder) DispatchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, c := range e.commands {
		if c.Pass != nil {
			n += len(c.Pass.Dispatches)
		}
	}
	return n
}

func (e *CommandEncoder) endPass(p *ComputePassEncoder) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.open == p {
		e.open = nil
	}
	e.commands = append(e.commands, Command{Pass: p.cmds})
}

// ComputePassEncoder records compute commands within a compute pass.
//
// Thread Safety:
// ComputePassEncoder is NOT meant for concurrent recording; the mutex only
// guards state queries. The pass must be ended with End() before the parent
// command encoder can continue recording.
//
// State Machine:
//
//	Recording -> End() -> Ended
type ComputePassEncoder struct {
	mu sync.Mutex

	encoder *CommandEncoder
	cmds    *PassCommands
	state   ComputePassState

	pipeline   ComputePipelineID
	bindGroups [MaxBindGroups]BindGroupID
}

// State returns the current pass state.
func (p *ComputePassEncoder) State() ComputePassState {
	if p == nil {
		return ComputePassStateEnded
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsEnded returns true if the pass has been ended.
func (p *ComputePassEncoder) IsEnded() bool {
	return p.State() == ComputePassStateEnded
}

// checkRecording returns an error if the pass is not in Recording state.
// The caller must hold p.mu.
func (p *ComputePassEncoder) checkRecording() error {
	if p.state != ComputePassStateRecording {
		return ErrComputePassEnded
	}
	return nil
}

// SetPipeline sets the compute pipeline for subsequent dispatch calls.
func (p *ComputePassEncoder) SetPipeline(pipeline ComputePipelineID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkRecording(); err != nil {
		return fmt.Errorf("set pipeline: %w", err)
	}
	if pipeline == InvalidID {
		return ErrNilComputePipeline
	}

	p.pipeline = pipeline
	return nil
}

// SetBindGroup binds a bind group for the given index (0-3).
func (p *ComputePassEncoder) SetBindGroup(index uint32, group BindGroupID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkRecording(); err != nil {
		return fmt.Errorf("set bind group: %w", err)
	}
	if index >= MaxBindGroups {
		return fmt.Errorf("%w: index %d", ErrComputeBindGroupIndexOutOfRange, index)
	}
	if group == InvalidID {
		return ErrNilComputeBindGroup
	}

	p.bindGroups[index] = group
	return nil
}

// Dispatch records a dispatch of x*y*z workgroups with the currently bound
// pipeline and bind groups.
func (p *ComputePassEncoder) Dispatch(x, y, z uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkRecording(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if p.pipeline == InvalidID {
		return ErrNoPipelineBound
	}
	if x == 0 || y == 0 || z == 0 {
		return fmt.Errorf("%w: (%d, %d, %d)", ErrWorkgroupCountZero, x, y, z)
	}

	p.cmds.Dispatches = append(p.cmds.Dispatches, DispatchCommand{
		Pipeline:   p.pipeline,
		BindGroups: p.bindGroups,
		X:          x,
		Y:          y,
		Z:          z,
	})
	return nil
}

// End completes the pass and hands its commands back to the encoder.
func (p *ComputePassEncoder) End() error {
	p.mu.Lock()
	if err := p.checkRecording(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("end: %w", err)
	}
	p.state = ComputePassStateEnded
	p.mu.Unlock()

	p.encoder.endPass(p)
	return nil
}
