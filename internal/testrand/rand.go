// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

// Package testrand implements generating random base types for testing.
package testrand

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/rand"
	"sync/atomic"
)

var nameCounter int64

// Int63n returns, as an int64, a non-negative pseudo-random number in [0,n)
// from the default source. It panics if n <= 0.
func Int63n(n int64) int64 {
	return rand.Int63n(n)
}

// Intn returns, as an int, a non-negative pseudo-random number in [0,n)
// from the default source. It panics if n <= 0.
func Intn(n int) int {
	return rand.Intn(n)
}

// Read reads pseudo-random data into data.
func Read(data []byte) {
	const newSourceThreshold = 64
	if len(data) < newSourceThreshold {
		_, _ = rand.Read(data)
		return
	}

	src := rand.NewSource(rand.Int63())
	r := rand.New(src)
	_, _ = r.Read(data)
}

// BytesN generates size amount of random data.
func BytesN(size int) []byte {
	data := make([]byte, size)
	Read(data)
	return data
}

// Reader creates a new random data reader.
func Reader() io.Reader {
	return rand.New(rand.NewSource(rand.Int63()))
}

// Checksum creates a random hex string shaped like an MD5 digest.
func Checksum() string {
	var sum [16]byte
	Read(sum[:])
	return hex.EncodeToString(sum[:])
}

// Name creates a unique name with the given prefix. Uniqueness holds within
// a single test process.
func Name(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, atomic.AddInt64(&nameCounter, 1))
}
