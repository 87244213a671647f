//go:build windows

package buffer

import (
	"errors"
	"syscall"
	"unsafe"
)

const (
	memCommit     = 0x00001000
	memReserve    = 0x00002000
	pageReadWrite = 0x04
)

type windowsNUMAAllocator struct{}

func newPlatformAllocator() numaAllocator {
	return &windowsNUMAAllocator{}
}

func (w *windowsNUMAAllocator) Alloc(size int, node int) ([]byte, error) {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	procVirtualAllocExNuma := kernel32.NewProc("VirtualAllocExNuma")
	procGetCurrentProcess := kernel32.NewProc("GetCurrentProcess")
	hProc, _, _ := procGetCurrentProcess.Call()
	ptr, _, err := procVirtualAllocExNuma.Call(
		hProc,
		0,
		uintptr(size),
		uintptr(memReserve|memCommit),
		uintptr(pageReadWrite),
		uintptr(node),
	)
	if ptr == 0 {
		return nil, errors.New("windows NUMA VirtualAllocExNuma failed: " + err.Error())
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size), nil
}

func (w *windowsNUMAAllocator) Nodes() (int, error) {
	return 1, nil
}
