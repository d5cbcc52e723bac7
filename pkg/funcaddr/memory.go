package funcaddr

// MemoryReader copies code bytes out of a live address range.
type MemoryReader interface {
	ReadMemory(addr, size uint64) ([]byte, error)
}

// MemoryReaderFunc adapts a function to MemoryReader.
type MemoryReaderFunc func(addr, size uint64) ([]byte, error)

func (f MemoryReaderFunc) ReadMemory(addr, size uint64) ([]byte, error) { return f(addr, size) }
