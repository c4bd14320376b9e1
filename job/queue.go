// Package job implements the lock-free single-producer/multi-consumer ring
// buffer the bootstrap core (the sole producer) uses to hand work to every
// logical processor (each a consumer, including the bootstrap core itself
// once it finishes bring-up). Ownership of a slot alternates between
// producer and consumer purely through the slot's own sequence number;
// there is no separate lock.
package job

import (
	"sync/atomic"
	"unsafe"

	"github.com/calint/uefi-os/config"
	"github.com/calint/uefi-os/cpu"
	"github.com/calint/uefi-os/kernel"
	"github.com/calint/uefi-os/kernel/kfmt"
)

var errPayloadTooLarge = &kernel.Error{Module: "job", Message: "job payload exceeds the slot's payload budget"}

// payloadBytes is the storage a submitted job type may occupy inside a
// slot. It, plus the runner pointer and the sequence/pad words, sizes Slot
// to exactly config.CacheLineSize so each slot owns one coherency unit.
const payloadBytes = 48

// Runnable is implemented by any type submitted to a Queue. Run executes
// the job and is responsible for releasing anything it constructed; the
// consumer never touches the payload again once Run returns.
type Runnable interface {
	Run()
}

// Slot is one cache-line-sized ring position. sequence is the sole
// synchronization primitive protecting payload and runner: a producer may
// write them only while sequence equals the slot's expected producer
// value, and a consumer may read them only after observing sequence one
// past that value.
type Slot struct {
	payload  [payloadBytes]byte
	runner   func(unsafe.Pointer)
	sequence atomic.Uint32
	_        uint32
}

// counter isolates one atomic word on its own cache line so head, tail and
// completed never share a coherency unit with each other or with
// neighboring slots.
type counter struct {
	v atomic.Uint32
	_ [config.CacheLineSize - unsafe.Sizeof(atomic.Uint32{})]byte
}

// Queue is the SPMC ring described by SPEC_FULL.md §4.6. The zero value is
// not ready to use; call Init first.
type Queue struct {
	_ [0]func() // makes Queue non-comparable, grounded on the pack's Mailbox idiom

	slots [config.JobQueueSlots]Slot

	head      counter
	tail      counter
	completed counter
}

// mask turns the monotonically increasing head/tail lap counters into a
// slot index. config.JobQueueSlots is required to be a power of two.
const mask = uint32(config.JobQueueSlots - 1)

// Init resets the queue to empty and writes every slot's initial sequence
// number. It must run once, on the producer, before any AP is launched
// and before any call to TryAdd/Add/RunNext.
func (q *Queue) Init() {
	q.head.v.Store(0)
	q.tail.v.Store(0)
	q.completed.v.Store(0)
	for i := range q.slots {
		q.slots[i].sequence.Store(uint32(i))
	}
}

// TryAdd constructs job in-place in the next slot and publishes it,
// returning false without blocking if that slot is not yet available
// (still owned by a consumer from a previous lap). Caller must be the
// single producer core.
//
// Go generics cannot express SPEC_FULL.md's "overlong payloads are a
// compile-time error" literally: unsafe.Sizeof of a type parameter is not
// a constant expression the way it is for a concrete type, so there is no
// array-length trick available inside a generic function. TryAdd instead
// panics through kfmt.Panic the first time it is called with an
// oversized T, which for a fixed, small set of job types instantiated at
// a handful of call sites amounts to the same "caught immediately, before
// any job runs" guarantee in practice.
func TryAdd[T Runnable](q *Queue, jb T) bool {
	if unsafe.Sizeof(jb) > payloadBytes {
		kfmt.Panic(errPayloadTooLarge)
	}

	head := q.head.v.Load()
	slot := &q.slots[head&mask]

	if slot.sequence.Load() != head {
		return false
	}

	*(*T)(unsafe.Pointer(&slot.payload[0])) = jb
	slot.runner = func(p unsafe.Pointer) {
		(*(*T)(p)).Run()
	}

	slot.sequence.Store(head + 1)
	q.head.v.Store(head + 1)
	return true
}

// Add spins with the PAUSE hint until TryAdd succeeds. Caller must be the
// single producer core.
func Add[T Runnable](q *Queue, jb T) {
	for !TryAdd(q, jb) {
		cpu.Pause()
	}
}

// RunNext claims and executes at most one ready job, returning false if
// none is ready. Safe to call from any consumer core concurrently with
// any other consumer core and with the producer.
func (q *Queue) RunNext() bool {
	for {
		tail := q.tail.v.Load()
		slot := &q.slots[tail&mask]

		if slot.sequence.Load() != tail+1 {
			return false
		}

		if !q.tail.v.CompareAndSwap(tail, tail+1) {
			// Another consumer claimed this slot first; retry against
			// whatever tail is now, without pausing.
			continue
		}

		slot.runner(unsafe.Pointer(&slot.payload[0]))
		slot.sequence.Store(tail + config.JobQueueSlots)
		q.completed.v.Add(1)
		return true
	}
}

// ActiveCount returns head-completed, a monotonic snapshot of jobs
// submitted but not yet finished. Caller must be the producer.
func (q *Queue) ActiveCount() uint32 {
	return q.head.v.Load() - q.completed.v.Load()
}

// WaitIdle spins until every submitted job has completed. Caller must be
// the producer.
func (q *Queue) WaitIdle() {
	for q.head.v.Load() != q.completed.v.Load() {
		cpu.Pause()
	}
}
