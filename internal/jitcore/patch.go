package jitcore

import (
	"encoding/binary"
	"fmt"

	"github.com/rv32dbt/core/internal/backend"
	"github.com/rv32dbt/core/internal/pagealloc"
)

// pendingPatch records one not-yet-resolved jump/branch site emitted during
// a block's translation, paired with the guest PC it targets, per spec
// §4.K's "Emitting -> Sealed" transition.
type pendingPatch struct {
	patch      *backend.Patch
	page       *pagealloc.CodePage
	pageOffset int
	targetPC   uint32
}

// resolvePatches backfills every pending site at block-seal time. A target
// already present in the Insn Map gets a direct host pointer; a target not
// yet translated gets an exit stub instead (spec's ForwardJumpFault idea,
// realized here as SetPC(targetPC); Return() rather than a dedicated
// helper, since BackendCore.Return already hands control back to the exec
// core with CPU.PC as the sole resume signal — see DESIGN.md).
func (h *Hart) resolvePatches(patches []pendingPatch) error {
	for _, p := range patches {
		var hostAddr uintptr
		if e, ok := h.insns.lookupByGuestPC(p.targetPC); ok {
			hostAddr = e.hostPtr
		} else {
			stub, err := h.emitExitStub(p.page, p.targetPC)
			if err != nil {
				return err
			}
			hostAddr = stub
		}
		if err := writePatch(p.page, p.pageOffset, h.emitter.PatchWidth(), hostAddr); err != nil {
			return err
		}
	}
	return nil
}

// emitExitStub appends a tiny host sequence that sets CPU.PC to targetPC
// and returns to the dispatch loop, used as a patch target when the jump's
// destination guest PC has not been translated yet. It is not itself
// recorded in the Insn Map: it is host-only glue, not a translation of any
// guest instruction.
func (h *Hart) emitExitStub(page *pagealloc.CodePage, targetPC uint32) (uintptr, error) {
	var buf backend.InsnBuf
	if err := h.emitter.SetPC(&buf, targetPC); err != nil {
		return 0, err
	}
	if err := h.emitter.Return(&buf); err != nil {
		return 0, err
	}
	return page.Push(buf.AsSlice())
}

// writePatch backfills a PatchWidth-byte little-endian host pointer at
// offset in page, per spec §4.E's uniform patch-site convention.
func writePatch(page *pagealloc.CodePage, offset, width int, hostAddr uintptr) error {
	if width != 8 {
		return fmt.Errorf("jitcore: unsupported patch width %d", width)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(hostAddr))
	return page.WriteAt(offset, buf[:])
}
