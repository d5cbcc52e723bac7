//go:build !linux

package funcaddr

import "unsafe"

type selfMemory struct{}

// SelfMemory returns a reader of the current process. The range must be
// mapped and readable.
func SelfMemory() MemoryReader {
	return selfMemory{}
}

func (selfMemory) ReadMemory(addr, size uint64) ([]byte, error) {
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}
	copy(buf, unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), size))
	return buf, nil
}
