// Package mtgoid identifies the calling goroutine. The standard library
// deliberately has no supported way to do this; no example or dependency in
// this module's corpus offers a goroutine-local-storage library, so this
// package parses the id out of a runtime.Stack dump, the same trick the Go
// runtime's own debugging tools use.
//
// A per-goroutine call-tree builder only needs this id as a lookup key, not
// as anything load-bearing for correctness: if parsing ever fails (a future
// Go runtime changing the dump format), Current falls back to 0, which
// simply means every caller that hits the fallback shares one builder.
package mtgoid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Current returns an identifier for the calling goroutine, stable for the
// life of that goroutine.
func Current() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGoroutineID(buf[:n])
}

// goroutine 18 [running]:
var goroutinePrefix = []byte("goroutine ")

func parseGoroutineID(stack []byte) int64 {
	stack = bytes.TrimPrefix(stack, goroutinePrefix)
	idx := bytes.IndexByte(stack, ' ')
	if idx < 0 {
		return 0
	}
	id, err := strconv.ParseInt(string(stack[:idx]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
