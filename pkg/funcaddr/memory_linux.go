//go:build linux

package funcaddr

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// ProcessMemory reads the memory of a process with process_vm_readv. Unmapped
// ranges fail with EFAULT instead of crashing the reader.
type ProcessMemory struct {
	Pid int
}

// SelfMemory returns a reader of the current process.
func SelfMemory() MemoryReader {
	return ProcessMemory{Pid: os.Getpid()}
}

func (p ProcessMemory) ReadMemory(addr, size uint64) ([]byte, error) {
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := unix.ProcessVMReadv(p.Pid, local, remote, 0)
	if err != nil {
		return nil, fmt.Errorf("read %d bytes at %#x of pid %d: %w", size, addr, p.Pid, err)
	}
	if n != len(buf) {
		return buf[:n], fmt.Errorf("read %d of %d bytes at %#x of pid %d: %w", n, size, addr, p.Pid, io.ErrUnexpectedEOF)
	}
	return buf, nil
}
