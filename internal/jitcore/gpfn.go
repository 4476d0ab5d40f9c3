package jitcore

import "github.com/rv32dbt/core/internal/pagealloc"

// codeRegion is one translated block's footprint: the code page it was
// emitted into and the contiguous guest address range it covers, so an
// invalidated gpfn can be mapped back to the Insn Map entries and host
// pages it touched.
type codeRegion struct {
	page   *pagealloc.CodePage
	loPC   uint32
	hiPC   uint32 // exclusive
	blocks int     // live block count still occupying this page
}

// gpfnSet tracks which guest physical frame numbers are currently backed by
// translated code, per spec §4.K/§4.L. A store whose physical address
// falls in a present gpfn must invalidate every code region covering it
// before the store is allowed to retire.
type gpfnSet struct {
	regions map[uint32][]*codeRegion // gpfn -> regions covering it
}

func newGpfnSet() *gpfnSet {
	return &gpfnSet{regions: make(map[uint32][]*codeRegion)}
}

func gpfnOf(phys uint32) uint32 { return phys >> 12 }

// cover records that region spans guest physical pages [loGpfn, hiGpfn).
func (g *gpfnSet) cover(region *codeRegion, loGpfn, hiGpfn uint32) {
	for gpfn := loGpfn; gpfn < hiGpfn; gpfn++ {
		g.regions[gpfn] = append(g.regions[gpfn], region)
	}
}

// present reports whether any translated code currently covers gpfn.
func (g *gpfnSet) present(gpfn uint32) bool {
	return len(g.regions[gpfn]) > 0
}

// invalidate drops gpfn's bucket, returning the regions it held so the
// caller can tear down their Insn Map entries and code pages. cover appends
// a region once per translated instruction, so the list can repeat the same
// *codeRegion; InvalidateJitBlock dedupes it. A region that also covers
// other gpfns stays listed in their buckets.
func (g *gpfnSet) invalidate(gpfn uint32) []*codeRegion {
	regions := g.regions[gpfn]
	delete(g.regions, gpfn)
	return regions
}
