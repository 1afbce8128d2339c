package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// workgroupSize is the edge of the kernel's square workgroup.
const workgroupSize = 8

// paramsSize is the byte size of the kernel's Params uniform.
const paramsSize = 16

// maxStorageBindingSize is the default WebGPU limit for one storage binding.
const maxStorageBindingSize = 128 << 20

// DefaultTimeout bounds the wait for the dispatch to complete.
const DefaultTimeout = 30 * time.Second

// UploadMode selects how coordinates reach the storage buffers.
type UploadMode int

const (
	// UploadDirect writes coordinates into the storage buffers through the queue.
	UploadDirect UploadMode = iota

	// UploadStaged writes coordinates into staging buffers and copies them
	// into the storage buffers in the command encoder.
	UploadStaged
)

// String returns the flag spelling of the mode.
func (m UploadMode) String() string {
	switch m {
	case UploadDirect:
		return "direct"
	case UploadStaged:
		return "staged"
	default:
		return fmt.Sprintf("UploadMode(%d)", int(m))
	}
}

// ParseUploadMode parses "direct" or "staged".
func ParseUploadMode(s string) (UploadMode, error) {
	switch s {
	case "direct", "":
		return UploadDirect, nil
	case "staged":
		return UploadStaged, nil
	default:
		return 0, fmt.Errorf("gpu: unknown upload mode %q (want direct or staged)", s)
	}
}

// packCoordinates narrows coordinates to little-endian f32.
func packCoordinates(vals []float64) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	return out
}

// packParams returns the 16-byte Params uniform.
func packParams(width, height, maxIterations uint32) []byte {
	out := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(out[0:], width)
	binary.LittleEndian.PutUint32(out[4:], height)
	binary.LittleEndian.PutUint32(out[8:], maxIterations)
	return out
}

// unpackPixels decodes packed RGBA8 words (r | g<<8 | b<<16 | a<<24) into dst.
func unpackPixels(packed []byte, dst []uint8, pixelCount int) {
	for i := 0; i < pixelCount; i++ {
		val := binary.LittleEndian.Uint32(packed[i*4:])
		j := i * 4
		dst[j+0] = uint8(val & 0xFF)         //nolint:gosec // masked to 8 bits
		dst[j+1] = uint8((val >> 8) & 0xFF)  //nolint:gosec // masked to 8 bits
		dst[j+2] = uint8((val >> 16) & 0xFF) //nolint:gosec // masked to 8 bits
		dst[j+3] = uint8((val >> 24) & 0xFF) //nolint:gosec // masked to 8 bits
	}
}

// workgroups returns the number of workgroups covering n invocations.
func workgroups(n uint32) uint32 {
	return (n + workgroupSize - 1) / workgroupSize
}

// checkSize rejects grids whose buffers exceed the storage binding limit.
func checkSize(width, height int) (uint64, error) {
	size := uint64(width) * uint64(height) * 4 //nolint:gosec // dimensions are positive
	if size > maxStorageBindingSize {
		return 0, fmt.Errorf("%w: %dx%d needs %d bytes, limit %d",
			ErrImageTooLarge, width, height, size, maxStorageBindingSize)
	}
	return size, nil
}
