// Package pools provides pooled I/O buffers for the on-disk structures.
//
// Row shuffles, range scans and hash segment walks each need a scratch
// buffer sized to the slots they touch. Pooling them keeps per-call
// buffers off the heap without sharing mutable state between callers.
package pools
