// Package chroma implements the per-frame keying math: pixel classification
// against a near-white backdrop, alpha matte smoothing and the frame
// processor that chains both over an RGBA buffer.
//
// Everything here is synchronous and allocation-free in steady state. The
// caller owns the buffers and decides when to resize them.
//
// Pipeline per frame:
//
//	source RGBA → Classify (every pixel) → output RGBA → Smooth (alpha plane)
//
// Comparisons happen in normalized [0,1] floating point, storage stays in
// 8-bit channel space.
package chroma
