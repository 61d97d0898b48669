package vmem

import "math/bits"

// floorLog2Class returns floor(log2(qsize)), clipped to the top class
// [0, classes-1]. qsize is assumed to be at least 1.
func floorLog2Class(qsize uintptr, classes int) int {
	if qsize < 1 {
		qsize = 1
	}
	class := bits.Len64(uint64(qsize)) - 1
	if class >= classes {
		class = classes - 1
	}
	return class
}

// ceilLog2Class returns ceil(log2(qsize)), clipped to the top class. This
// is the fast-path starting class for a request of qsize quanta: unless
// the result was clipped to the top class, any segment in this class or
// above is guaranteed big enough.
func ceilLog2Class(qsize uintptr, classes int) int {
	if qsize <= 1 {
		return 0
	}
	class := bits.Len64(uint64(qsize - 1))
	if class >= classes {
		class = classes - 1
	}
	return class
}
