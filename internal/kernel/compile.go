// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"

	"github.com/gogpu/mandy/internal/cache"
)

// ErrCompile is returned when the kernel source does not compile.
var ErrCompile = errors.New("kernel: compile failed")

// compiled holds SPIR-V by source digest. Failed compiles are not kept.
var compiled = cache.New[[sha256.Size]byte, []uint32](8)

// Compile translates WGSL source to SPIR-V words.
// SPIR-V is little-endian 32-bit words. The result is shared between
// callers and must not be modified.
func Compile(code string) ([]uint32, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: empty source", ErrCompile)
	}

	key := sha256.Sum256([]byte(code))
	if words, ok := compiled.Get(key); ok {
		return words, nil
	}

	spirvBytes, err := naga.Compile(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("%w: SPIR-V length %d is not a multiple of 4", ErrCompile, len(spirvBytes))
	}

	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	compiled.Set(key, words)
	return words, nil
}

// Validate reports whether the source compiles.
func (s Source) Validate() error {
	if _, err := Compile(s.Code); err != nil {
		if s.Path != "" {
			return fmt.Errorf("%s: %w", s.Path, err)
		}
		return err
	}
	return nil
}
