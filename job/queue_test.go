package job

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/calint/uefi-os/config"
)

type countingJob struct {
	counter *int64
}

func (j countingJob) Run() {
	atomic.AddInt64(j.counter, 1)
}

type orderedJob struct {
	seen *[]int
	mu   *sync.Mutex
	idx  int
}

func (j orderedJob) Run() {
	j.mu.Lock()
	*j.seen = append(*j.seen, j.idx)
	j.mu.Unlock()
}

func TestInitZeroesCountersAndSeedsSequence(t *testing.T) {
	var q Queue
	q.Init()

	if q.head.v.Load() != 0 || q.tail.v.Load() != 0 || q.completed.v.Load() != 0 {
		t.Fatal("expected head, tail and completed to be zero after Init")
	}
	for i := range q.slots {
		if got := q.slots[i].sequence.Load(); got != uint32(i) {
			t.Fatalf("slot %d: expected initial sequence %d; got %d", i, i, got)
		}
	}
}

func TestTryAddThenRunNextSingleProducerSingleConsumer(t *testing.T) {
	var q Queue
	q.Init()

	var counter int64
	const n = 10
	for i := 0; i < n; i++ {
		if !TryAdd(&q, countingJob{counter: &counter}) {
			t.Fatalf("job %d: expected TryAdd to succeed on a non-full queue", i)
		}
	}

	for i := 0; i < n; i++ {
		if !q.RunNext() {
			t.Fatalf("run %d: expected a ready job", i)
		}
	}

	if q.RunNext() {
		t.Fatal("expected no job ready once all submitted jobs have run")
	}
	if got := atomic.LoadInt64(&counter); got != n {
		t.Fatalf("expected %d executions; got %d", n, got)
	}
	if got := q.ActiveCount(); got != 0 {
		t.Fatalf("expected active count 0 after draining; got %d", got)
	}
}

func TestSingleConsumerPreservesSubmissionOrder(t *testing.T) {
	var q Queue
	q.Init()

	var mu sync.Mutex
	var seen []int
	const n = 20
	for i := 0; i < n; i++ {
		Add(&q, orderedJob{seen: &seen, mu: &mu, idx: i})
	}
	for i := 0; i < n; i++ {
		if !q.RunNext() {
			t.Fatalf("run %d: expected a ready job", i)
		}
	}

	if len(seen) != n {
		t.Fatalf("expected %d executions; got %d", n, len(seen))
	}
	for i, v := range seen {
		if v != i {
			t.Fatalf("expected submission order to be preserved; position %d has job %d", i, v)
		}
	}
}

func TestTryAddFailsWhenFullAndAddSpinsUntilDrained(t *testing.T) {
	var q Queue
	q.Init()

	var counter int64
	for i := 0; i < config.JobQueueSlots; i++ {
		if !TryAdd(&q, countingJob{counter: &counter}) {
			t.Fatalf("job %d: expected the first N TryAdds to succeed", i)
		}
	}
	if TryAdd(&q, countingJob{counter: &counter}) {
		t.Fatal("expected TryAdd to fail once submitted-completed == N")
	}

	// 300 jobs into a 256-slot queue (end-to-end scenario 3): the extra 44
	// spin inside Add until the consumer, started concurrently, drains
	// slots for them to land in.
	const extra = 44
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < extra; i++ {
			Add(&q, countingJob{counter: &counter})
		}
	}()

	total := config.JobQueueSlots + extra
	ran := 0
	for ran < total {
		if q.RunNext() {
			ran++
		}
	}
	wg.Wait()

	if got := atomic.LoadInt64(&counter); got != int64(total) {
		t.Fatalf("expected all %d jobs to execute exactly once; got %d", total, got)
	}
}

func TestWaitIdleWithConcurrentConsumers(t *testing.T) {
	var q Queue
	q.Init()

	var counter int64
	const n = config.JobQueueSlots
	for i := 0; i < n; i++ {
		Add(&q, countingJob{counter: &counter})
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	const consumers = 4
	wg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					q.RunNext()
				}
			}
		}()
	}

	q.WaitIdle()
	close(stop)
	wg.Wait()

	if got := q.completed.v.Load(); got != n {
		t.Fatalf("expected completed == %d once WaitIdle returns; got %d", n, got)
	}
	if got := atomic.LoadInt64(&counter); got != n {
		t.Fatalf("expected %d executions; got %d", n, got)
	}
}

func TestEachJobExecutesExactlyOnceUnderConcurrentConsumers(t *testing.T) {
	var q Queue
	q.Init()

	const n = config.JobQueueSlots
	counts := make([]int32, n)

	for i := 0; i < n; i++ {
		Add(&q, markingJob{counts: &counts, idx: i})
	}

	var wg sync.WaitGroup
	const consumers = 8
	wg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer wg.Done()
			for q.ActiveCount() > 0 {
				q.RunNext()
			}
		}()
	}
	wg.Wait()

	for i, c := range counts {
		if c != 1 {
			t.Fatalf("job %d executed %d times; expected exactly 1", i, c)
		}
	}
}

type markingJob struct {
	counts *[]int32
	idx    int
}

func (j markingJob) Run() {
	atomic.AddInt32(&(*j.counts)[j.idx], 1)
}
