package jitcore

import (
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"github.com/rv32dbt/core/internal/backend"
	"github.com/rv32dbt/core/internal/frontend"
	"github.com/rv32dbt/core/internal/guest"
	"github.com/rv32dbt/core/internal/pagealloc"
)

// maxBlockInsns bounds a single translated block, per spec §4.K's
// Translating->Emitting transition. RV32 control flow (branch/jump/system)
// already ends a block; this cap only bites on long straight-line runs, and
// keeps gpfn invalidation granularity and recompilation cost bounded.
const maxBlockInsns = 512

// wfiQuantum is how long a WFI-halted hart sleeps before re-checking for a
// pending interrupt, per the supplemented "wfi as a bounded sleep" design
// (see DESIGN.md) rather than a busy spin or an indefinite block.
const wfiQuantum = 100 * time.Microsecond

// Hart is the per-hart exec core state machine described in spec §4.K: it
// owns the guest CPU, drives translation via the frontend against one
// backend, and runs the Idle/Translating/Emitting/Sealed/Executing/Handling
// cycle. Never touched cross-thread, per §5.
type Hart struct {
	CPU *guest.CPU

	emitter backend.Emitter
	driver  *frontend.Driver
	alloc   pagealloc.Allocator
	log     *slog.Logger

	insns *insnMap
	gpfns *gpfnSet

	curPage     *pagealloc.CodePage
	nextBlockID uint32
}

// NewHart constructs a hart bound to one backend emitter, wiring the
// backend's single fixed helper trampoline to this package's Dispatch.
func NewHart(cpu *guest.CPU, emitter backend.Emitter, alloc pagealloc.Allocator, log *slog.Logger) *Hart {
	if log == nil {
		log = slog.Default()
	}
	h := &Hart{
		CPU:     cpu,
		emitter: emitter,
		driver:  frontend.NewDriver(emitter),
		alloc:   alloc,
		log:     log,
		insns:   newInsnMap(),
		gpfns:   newGpfnSet(),
	}
	emitter.SetHelperDispatch(h.Dispatch)
	emitter.SetFaultPCResolver(h.findGuestPCFromHostPC)
	return h
}

// findGuestPCFromHostPC implements spec §4.E's
// find_guest_pc_from_host_stack_frame against this hart's Insn Map, wired
// in as the backend's FaultPCResolver at construction. Best-effort: the
// host PC Protected captures from a recovered fault may not land inside (or
// even within maxWalkBack of) any recorded entry, in which case the caller
// falls back to block-start granularity.
func (h *Hart) findGuestPCFromHostPC(hostPC uintptr) (uint32, bool) {
	e, ok := h.insns.lookupByHostPtr(hostPC)
	if !ok {
		return 0, false
	}
	return e.guestPC, true
}

// Step runs one Idle->...->Handling->Idle cycle: translate (or reuse) the
// block starting at CPU.PC, execute it, and process whatever it exited
// with. Returns false when the hart has halted permanently (an
// unrecoverable internal error, not an ordinary guest trap).
func (h *Hart) Step() (bool, error) {
	if h.CPU.WFI {
		h.waitForInterrupt()
		return true, nil
	}

	entry, fault, err := h.fetchOrTranslate(h.CPU.PC)
	if err != nil {
		return false, err
	}
	if fault != nil {
		h.CPU.Trap(fault.Cause, h.CPU.PC, fault.Tval)
		return true, nil
	}

	if faulted, hostPC := Protected(func() {
		h.emitter.CallJIT(entry, uintptr(unsafe.Pointer(h.CPU)))
	}); faulted {
		pc := h.CPU.PC
		if gpc, ok := h.emitter.FindGuestPC(hostPC); ok {
			pc = gpc
		}
		h.log.Warn("recovered host fault in translated block", "pc", pc)
		h.CPU.Exception = guest.NewException(guest.CauseInsnAccessFault, pc)
	}
	h.CPU.Bus.TickCoreLocal()

	if exc := h.CPU.Exception; exc != nil {
		h.CPU.Exception = nil
		if exc.Cause == guest.CauseInvalidateJitBlock {
			// Engine-internal: a store retired against a gpfn backing a live
			// translation. Not a guest-visible trap, so CPU.PC is left
			// wherever the block's own exit logic already placed it.
			h.InvalidateJitBlock(exc.Tval)
			return true, nil
		}
		h.log.Debug("guest exception", "cause", exc.Cause, "tval", exc.Tval, "pc", h.CPU.PC)
		h.CPU.Trap(exc.Cause, h.CPU.PC, exc.Tval)
	} else if cause, ok := h.CPU.PendingInterrupt(); ok {
		h.CPU.Trap(cause, h.CPU.PC, 0)
	}
	return true, nil
}

// Run drives Step until it returns false or stop reports true, checked
// between blocks rather than mid-translation (a block is never interrupted
// partway through, per §4.K's state machine).
func (h *Hart) Run(stop func() bool) error {
	for !stop() {
		ok, err := h.Step()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// waitForInterrupt is the bounded-sleep WFI handling the teacher's rv64
// line supplements spec.md with (see DESIGN.md): rather than busy-spinning
// or blocking indefinitely, the hart naps in short quanta and polls the bus
// for a pending async IRQ each time, clearing WFI once Trap Logic has one
// to deliver.
func (h *Hart) waitForInterrupt() {
	time.Sleep(wfiQuantum)
	// Devices raise their own mip bits from TickAsync; WFI only needs to
	// notice once PendingInterrupt reports one ready to deliver.
	h.CPU.Bus.TickAsync(h.CPU)
	if cause, ok := h.CPU.PendingInterrupt(); ok {
		h.CPU.WFI = false
		h.CPU.Trap(cause, h.CPU.PC, 0)
	}
}

// fetchOrTranslate returns the host entry point for guestPC, translating a
// fresh block if one isn't already cached. A non-nil fault return means
// instruction fetch itself faulted (fetching the very first instruction of
// a prospective block); no code is emitted in that case.
func (h *Hart) fetchOrTranslate(guestPC uint32) (hostPtr uintptr, fault *guest.Exception, err error) {
	if e, ok := h.insns.lookupByGuestPC(guestPC); ok {
		return e.hostPtr, nil, nil
	}
	return h.translateBlock(guestPC)
}

// translateBlock implements Translating->Emitting->Sealed, per spec §4.K.
func (h *Hart) translateBlock(startPC uint32) (uintptr, *guest.Exception, error) {
	page, err := pagealloc.NewCodePage(h.alloc)
	if err != nil {
		return 0, nil, fmt.Errorf("jitcore: allocate code page: %w", err)
	}
	blockID := h.nextBlockID
	h.nextBlockID++

	region := &codeRegion{page: page, loPC: startPC}
	var patches []pendingPatch
	var buf backend.InsnBuf

	pc := startPC
	for i := 0; i < maxBlockInsns; i++ {
		phys, ferr := h.CPU.MMU.Translate(h.CPU.Priv, pc, guest.AccessExecute)
		if ferr != nil {
			if i == 0 {
				_ = page.Free()
				return 0, asException(ferr), nil
			}
			break
		}
		insnWord, berr := h.CPU.Bus.Load(phys, 32)
		if berr != nil {
			if i == 0 {
				_ = page.Free()
				return 0, asException(berr), nil
			}
			break
		}

		h.gpfns.cover(region, gpfnOf(phys), gpfnOf(phys)+1)

		buf.Reset()
		result, derr := h.driver.Translate(&buf, insnWord, pc)
		if derr != nil {
			if i == 0 {
				_ = page.Free()
				return 0, guest.NewException(guest.CauseIllegalInsn, insnWord), nil
			}
			break
		}

		hostAddr, perr := page.Push(buf.AsSlice())
		if perr != nil {
			return 0, nil, fmt.Errorf("jitcore: push block bytes: %w", perr)
		}
		h.insns.add(pc, hostAddr, blockID)

		if result != nil && result.Patch != nil {
			// result.Patch.Offset is relative to the single-instruction buf
			// just pushed, not to the page: rebase it against where that buf
			// landed (hostAddr - page.Begin()) before recording it.
			pageOffset := int(hostAddr-page.Begin()) + result.Patch.Offset
			patches = append(patches, pendingPatch{patch: result.Patch, page: page, pageOffset: pageOffset, targetPC: result.TargetPC})
		}
		if result != nil && result.EndsBlock {
			pc += 4
			break
		}
		pc += 4
	}
	if pc == startPC {
		// Shouldn't happen (the i==0 fault paths return above), but guard
		// against an empty block rather than sealing a page with nothing
		// runnable in it.
		_ = page.Free()
		return 0, guest.NewException(guest.CauseIllegalInsn, 0), nil
	}
	// When pc (the address after the last translated instruction) has no
	// entry yet, as after hitting maxBlockInsns, stopping at an
	// untranslatable instruction, or a block-ending branch's fallthrough,
	// synthesize a fallthrough exit stub so execution resumes correctly there.
	if _, ok := h.insns.lookupByGuestPC(pc); !ok {
		if _, err := h.emitExitStub(page, pc); err != nil {
			return 0, nil, err
		}
	}

	region.hiPC = pc
	if err := h.resolvePatches(patches); err != nil {
		return 0, nil, err
	}
	if err := page.MarkRX(); err != nil {
		return 0, nil, fmt.Errorf("jitcore: seal code page: %w", err)
	}

	h.curPage = page
	entry, _ := h.insns.lookupByGuestPC(startPC)
	return entry.hostPtr, nil, nil
}

// asException unwraps a guest.Exception from an MMU/bus error, or wraps a
// generic one as an access fault.
func asException(err error) *guest.Exception {
	if exc, ok := err.(*guest.Exception); ok {
		return exc
	}
	return guest.NewException(guest.CauseInsnAccessFault, 0)
}

// InvalidateJitBlock drops every code region covering gpfn, per spec §4.K's
// Handling->Idle transition: removes the region's Insn Map entries, marks
// its code page inaccessible, and frees it once no other gpfn still
// references it.
func (h *Hart) InvalidateJitBlock(gpfn uint32) {
	regions := h.gpfns.invalidate(gpfn)
	seen := make(map[*codeRegion]bool)
	for _, r := range regions {
		if seen[r] {
			continue
		}
		seen[r] = true
		h.insns.removeByGuestRegion(r.loPC, r.hiPC)
		if err := r.page.MarkInvalid(); err != nil {
			h.log.Warn("mark invalidated code page", "err", err)
		}
		stillCovered := false
		for _, others := range h.gpfns.regions {
			for _, o := range others {
				if o == r {
					stillCovered = true
				}
			}
		}
		if stillCovered {
			continue
		}
		if err := r.page.Free(); err != nil {
			h.log.Warn("free invalidated code page", "err", err)
		}
	}
	h.log.Debug("invalidated jit block", "gpfn", gpfn, "regions", len(regions))
}
