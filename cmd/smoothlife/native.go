//go:build !nogpu

package main

// Register the wgpu backend.
import _ "github.com/gogpu/smoothlife/backend/native"
