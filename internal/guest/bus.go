package guest

import "fmt"

// BusDevice is the sole extension point for device models (UART, CLINT,
// PLIC, framebuffer, ...), which are out of scope for this core per spec
// §1 — the core only needs the contract, ported from rv64.Device/BusInterface
// and expanded with the tick/get_ptr hooks spec §6 requires.
type BusDevice interface {
	// Load reads sizeBits (8/16/32) bits at addr. addr is the absolute bus
	// address (the Bus passes it through unchanged); a device subtracts its
	// own base where it needs an offset.
	Load(addr uint32, sizeBits int) (uint32, error)
	// Store writes sizeBits bits of data at addr.
	Store(addr uint32, data uint32, sizeBits int) error
	// Range returns the device's [begin,end) address window.
	Range() (begin, end uint32)
	// TickCoreLocal is called on the owning hart's quantum boundary.
	TickCoreLocal()
	// TickAsync is called from a separate housekeeping thread; ok reports
	// whether irq holds an IRQ number to raise on the hart.
	TickAsync(cpu *CPU) (irq int, ok bool)
	// GetPtr returns a direct host pointer for addr when the region is
	// RAM-like, enabling the fastmem emitter path. ok is false for
	// registers that must always go through Load/Store.
	GetPtr(addr uint32) (ptr uintptr, ok bool)
}

type deviceMapping struct {
	begin, end uint32
	dev        BusDevice
}

// Bus dispatches loads/stores to the device whose range contains the
// address, per spec §4.G. Constructed once at startup and read-only
// thereafter (§5 "BUS device list").
type Bus struct {
	mappings []deviceMapping
}

// NewBus creates an empty bus.
func NewBus() *Bus { return &Bus{} }

// AddDevice registers dev, which must report its own range via Range().
func (b *Bus) AddDevice(dev BusDevice) {
	begin, end := dev.Range()
	b.mappings = append(b.mappings, deviceMapping{begin: begin, end: end, dev: dev})
}

func (b *Bus) find(addr uint32) (BusDevice, error) {
	for _, m := range b.mappings {
		if addr >= m.begin && addr < m.end {
			return m.dev, nil
		}
	}
	return nil, NewException(CauseLoadAccessFault, addr)
}

// Load reads sizeBits bits from addr.
func (b *Bus) Load(addr uint32, sizeBits int) (uint32, error) {
	dev, err := b.find(addr)
	if err != nil {
		return 0, err
	}
	return dev.Load(addr, sizeBits)
}

// Store writes sizeBits bits of data to addr.
func (b *Bus) Store(addr uint32, data uint32, sizeBits int) error {
	dev, err := b.find(addr)
	if err != nil {
		return err
	}
	return dev.Store(addr, data, sizeBits)
}

// GetPtr returns a host pointer for addr if the owning device supports
// direct mapping (used by the fastmem emitter path).
func (b *Bus) GetPtr(addr uint32) (uintptr, bool) {
	dev, err := b.find(addr)
	if err != nil {
		return 0, false
	}
	return dev.GetPtr(addr)
}

// TickCoreLocal ticks every device on the hart's own quantum boundary.
func (b *Bus) TickCoreLocal() {
	for _, m := range b.mappings {
		m.dev.TickCoreLocal()
	}
}

// TickAsync ticks every device and returns the IRQ numbers they reported.
// Raising them (for example as MEIP/SEIP bits) is left to the caller;
// jitcore's WFI loop discards the list and relies on devices setting their
// own mip bits.
func (b *Bus) TickAsync(cpu *CPU) []int {
	var irqs []int
	for _, m := range b.mappings {
		if irq, ok := m.dev.TickAsync(cpu); ok {
			irqs = append(irqs, irq)
		}
	}
	return irqs
}

// RAMDevice is a flat byte-addressable region backing guest physical RAM,
// held in a caller-supplied byte slice (cmd/rvjit passes an ordinary Go
// slice) so that GetPtr can hand out host pointers into it for the fastmem
// path. Ported from
// rv64.MemoryRegion, narrowed to 32-bit addressing.
type RAMDevice struct {
	base uint32
	data []byte
}

// NewRAMDevice wraps a host-allocated byte slice as guest RAM starting at
// base.
func NewRAMDevice(base uint32, data []byte) *RAMDevice {
	return &RAMDevice{base: base, data: data}
}

func (r *RAMDevice) Range() (uint32, uint32) { return r.base, r.base + uint32(len(r.data)) }

func (r *RAMDevice) Load(addr uint32, sizeBits int) (uint32, error) {
	off := addr - r.base
	n := sizeBits / 8
	if uint64(off)+uint64(n) > uint64(len(r.data)) {
		return 0, fmt.Errorf("guest: RAM read out of bounds: addr=%#x size=%d", addr, n)
	}
	switch sizeBits {
	case 8:
		return uint32(r.data[off]), nil
	case 16:
		return uint32(endian.Uint16(r.data[off:])), nil
	case 32:
		return endian.Uint32(r.data[off:]), nil
	default:
		return 0, fmt.Errorf("guest: invalid RAM access size %d bits", sizeBits)
	}
}

func (r *RAMDevice) Store(addr uint32, data uint32, sizeBits int) error {
	off := addr - r.base
	n := sizeBits / 8
	if uint64(off)+uint64(n) > uint64(len(r.data)) {
		return fmt.Errorf("guest: RAM write out of bounds: addr=%#x size=%d", addr, n)
	}
	switch sizeBits {
	case 8:
		r.data[off] = byte(data)
	case 16:
		endian.PutUint16(r.data[off:], uint16(data))
	case 32:
		endian.PutUint32(r.data[off:], data)
	default:
		return fmt.Errorf("guest: invalid RAM access size %d bits", sizeBits)
	}
	return nil
}

func (r *RAMDevice) TickCoreLocal()                            {}
func (r *RAMDevice) TickAsync(*CPU) (int, bool)                { return 0, false }
func (r *RAMDevice) GetPtr(addr uint32) (uintptr, bool) {
	off := addr - r.base
	if uint64(off) >= uint64(len(r.data)) {
		return 0, false
	}
	return uintptr(unsafePointer(r.data, int(off))), true
}
