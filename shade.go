package mandy

// Escape returns the number of iterations of z = z*z + c, starting at z = 0,
// before |z| exceeds 2. Points that stay bounded return max.
func Escape(cx, cy float64, max uint32) uint32 {
	var zx, zy float64
	var n uint32
	for n < max && zx*zx+zy*zy <= 4 {
		zx, zy = zx*zx-zy*zy+cx, 2*zx*zy+cy
		n++
	}
	return n
}

// Shade maps an escape count to a grey level. Fast escapes are bright,
// points that never escape are black. The device kernel uses the same
// integer formula.
func Shade(n, max uint32) uint8 {
	if max == 0 || n >= max {
		return 0
	}
	return uint8(255 - uint64(n)*255/uint64(max))
}
