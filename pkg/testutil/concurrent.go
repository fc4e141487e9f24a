package testutil

import (
	"sync"

	dErrors "gatekeeper/pkg/domain-errors"
)

// Outcomes tallies the results of concurrent calls by domain error code.
type Outcomes struct {
	mu        sync.Mutex
	successes int
	byCode    map[dErrors.Code]int
}

func (o *Outcomes) record(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err == nil {
		o.successes++
		return
	}
	o.byCode[dErrors.CodeOf(err)]++
}

func (o *Outcomes) Successes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.successes
}

// Count returns how many calls failed with code. Errors carrying no domain
// code count as CodeInternal.
func (o *Outcomes) Count(code dErrors.Code) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.byCode[code]
}

func (o *Outcomes) Total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := o.successes
	for _, n := range o.byCode {
		total += n
	}
	return total
}

// RunConcurrent calls fn(i) for i in [0, n) from n goroutines that start
// together, waits for all of them and tallies the results.
func RunConcurrent(n int, fn func(i int) error) *Outcomes {
	out := &Outcomes{byCode: map[dErrors.Code]int{}}
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			<-start
			out.record(fn(i))
		})
	}
	close(start)
	wg.Wait()
	return out
}
