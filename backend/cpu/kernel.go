package cpu

// Kernel is the Go implementation of one compute entry point. It is called
// once per invocation with the global invocation id, like a WGSL function
// taking @builtin(global_invocation_id). Invocations of a dispatch run
// concurrently, so a kernel must only write texels it owns.
type Kernel func(b *Bindings, id [3]uint32)

// Bindings exposes the resources bound for a dispatch.
type Bindings struct {
	groups [4]*bindGroup
}

// Texture returns the texture bound at (group, binding), or nil.
func (b *Bindings) Texture(group, binding uint32) *Texture {
	if int(group) >= len(b.groups) || b.groups[group] == nil {
		return nil
	}
	return b.groups[group].textures[binding]
}

// Buffer returns the bytes of the buffer range bound at (group, binding),
// or nil. Uniform contents are read-only by convention.
func (b *Bindings) Buffer(group, binding uint32) []byte {
	if int(group) >= len(b.groups) || b.groups[group] == nil {
		return nil
	}
	return b.groups[group].buffers[binding]
}
