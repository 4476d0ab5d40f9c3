package guest

import "unsafe"

var _ BusDevice = (*RAMDevice)(nil)

// unsafePointer returns the host address of data[off], used by RAMDevice.GetPtr
// to hand the fastmem emitter path a real pointer into guest RAM.
func unsafePointer(data []byte, off int) unsafe.Pointer {
	return unsafe.Pointer(&data[off])
}
