// Package life implements SmoothLife on the render graph: the pipeline
// resource, the per-frame bind group, and the node that walks the compute
// pass through its Loading, Init and Update stages.
//
// The state image is sampled at binding 0 and never written by a shader.
// Each pass writes the next generation into a scratch storage texture
// (binding 1), and the node copies scratch back into the state image after
// the pass. Readers of the state image therefore always see a complete
// generation.
package life
