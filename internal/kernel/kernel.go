// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernel locates, loads and validates the Mandelbrot compute kernel.
//
// The kernel is a WGSL compute shader named mandy.wgsl inside a folder named
// "kernel". The folder is searched for around the working directory, the way
// the command line tool finds it when run from a checkout; a copy of the
// kernel is embedded in the binary for when no folder is found.
package kernel

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FolderName is the directory name searched for.
const FolderName = "kernel"

// FileName is the kernel file inside the folder.
const FileName = "mandy.wgsl"

// EntryPoint is the compute entry point of the kernel.
const EntryPoint = "main"

// Default search depths: three ancestors, then three levels of descendants.
const (
	DefaultParents = 3
	DefaultKids    = 3
)

// ErrNotFound is returned when no kernel folder is found.
var ErrNotFound = errors.New("kernel: folder not found")

//go:embed mandy.wgsl
var defaultSource string

// Source is a loaded kernel.
type Source struct {
	// Name labels the shader module.
	Name string
	// Path is the file the code was read from; empty for the embedded kernel.
	Path string
	// Code is the WGSL source.
	Code string
}

// Embedded reports whether the source is the built-in kernel.
func (s Source) Embedded() bool { return s.Path == "" }

// Default returns the kernel embedded in the binary.
func Default() Source {
	return Source{Name: "mandy", Code: defaultSource}
}

// Locate searches for a folder named FolderName.
//
// First start and up to parents of its ancestors are checked for a direct
// child named FolderName. Then the descendants of start are searched breadth
// first, up to kids levels deep. The first match is returned.
func Locate(start string, parents, kids int) (string, error) {
	start, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("kernel: resolve %q: %w", start, err)
	}

	dir := start
	for i := 0; i <= parents; i++ {
		if candidate := filepath.Join(dir, FolderName); isDir(candidate) {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	level := []string{start}
	for depth := 0; depth < kids && len(level) > 0; depth++ {
		var next []string
		for _, d := range level {
			entries, err := os.ReadDir(d)
			if err != nil {
				continue
			}
			for _, e := range entries {
				if !e.IsDir() {
					continue
				}
				p := filepath.Join(d, e.Name())
				if e.Name() == FolderName {
					return p, nil
				}
				next = append(next, p)
			}
		}
		level = next
	}

	return "", fmt.Errorf("%w: %q within %d parents and %d levels of children",
		ErrNotFound, FolderName, parents, kids)
}

// Load reads FileName from the kernel folder dir.
func Load(dir string) (Source, error) {
	path := filepath.Join(dir, FileName)
	code, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Source{}, fmt.Errorf("kernel: read %s: %w", path, err)
	}
	return Source{Name: "mandy", Path: path, Code: string(code)}, nil
}

// Resolve returns the kernel to run.
//
// An explicit dir is loaded as is. Otherwise the folder is searched for from
// start with the default depths, and the embedded kernel is used when none
// is found.
func Resolve(dir, start string) (Source, error) {
	if dir != "" {
		return Load(dir)
	}

	found, err := Locate(start, DefaultParents, DefaultKids)
	if errors.Is(err, ErrNotFound) {
		return Default(), nil
	}
	if err != nil {
		return Source{}, err
	}
	return Load(found)
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
