// Package backend defines the host-architecture-agnostic pieces of the JIT
// code generator: the encoded-instruction staging buffer (spec §4.C) and the
// capability interfaces (spec §4.D/§4.E) that the amd64 and arm64 backends
// implement. The frontend decoders (internal/frontend) talk only to these
// interfaces; they never see host-specific register numbers directly.
package backend

import "fmt"

// InsnBufCapacity bounds a single emitted host instruction sequence, per
// spec §4.C ("capacity ≥ 96"), sized up from that floor to cover the
// largest sequence either backend actually emits: arm64's fastmem blocks,
// which pay for two full helper calls (address resolve, slow-path
// fallback) at ~48 bytes apiece under that backend's LR-save/literal-pool
// calling convention (see arm64/emit.go's fastmemBlockSize). A handful of
// patterns (fastmem blocks, helper calls with full register marshaling)
// emit more than one host instruction per guest instruction but still fit
// comfortably under this cap.
const InsnBufCapacity = 192

// InsnBuf is a stack-resident fixed-capacity staging area for one emitted
// host instruction sequence, per spec §4.C. Emitters push into it; the exec
// core copies it into the active CodePage.
type InsnBuf struct {
	data [InsnBufCapacity]byte
	n    int
}

// PushSlice appends b, failing if it would overflow the buffer.
func (i *InsnBuf) PushSlice(b []byte) error {
	if i.n+len(b) > InsnBufCapacity {
		return fmt.Errorf("backend: insn buffer overflow (have %d, want to add %d, cap %d)", i.n, len(b), InsnBufCapacity)
	}
	copy(i.data[i.n:], b)
	i.n += len(b)
	return nil
}

// PushByte appends a single byte.
func (i *InsnBuf) PushByte(b byte) error {
	return i.PushSlice([]byte{b})
}

// Size returns the number of bytes staged so far.
func (i *InsnBuf) Size() int { return i.n }

// AsSlice returns a view over the staged bytes.
func (i *InsnBuf) AsSlice() []byte { return i.data[:i.n] }

// Reset clears the buffer for reuse.
func (i *InsnBuf) Reset() { i.n = 0 }
