package gc

// Allocator is the raw storage collaborator behind a Heap. Node payloads
// themselves live in Go memory; the allocator accounts for them so that the
// heap can decide when to collect and when memory is exhausted.
type Allocator interface {
	// Allocate reserves size bytes, reporting false if the request cannot
	// be satisfied.
	Allocate(size uintptr) bool
	// Deallocate returns size bytes previously reserved.
	Deallocate(size uintptr)
	// BytesAllocated reports the outstanding byte count.
	BytesAllocated() uintptr
}

// MemoryBank is the default Allocator: a running byte counter with an
// optional hard limit.
type MemoryBank struct {
	limit     uintptr
	allocated uintptr
	peak      uintptr
	blocks    uint64
}

// NewMemoryBank returns a bank refusing requests beyond limit bytes
// outstanding (0 means unlimited).
func NewMemoryBank(limit uintptr) *MemoryBank {
	return &MemoryBank{limit: limit}
}

func (b *MemoryBank) Allocate(size uintptr) bool {
	if b.limit != 0 && b.allocated+size > b.limit {
		return false
	}
	b.allocated += size
	b.blocks++
	if b.allocated > b.peak {
		b.peak = b.allocated
	}
	return true
}

func (b *MemoryBank) Deallocate(size uintptr) {
	if size > b.allocated {
		b.allocated = 0
	} else {
		b.allocated -= size
	}
	if b.blocks > 0 {
		b.blocks--
	}
}

func (b *MemoryBank) BytesAllocated() uintptr { return b.allocated }

// Peak reports the high-water mark of outstanding bytes.
func (b *MemoryBank) Peak() uintptr { return b.peak }

// Blocks reports the number of outstanding allocations.
func (b *MemoryBank) Blocks() uint64 { return b.blocks }
