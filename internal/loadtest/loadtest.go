// Package loadtest drives concurrent structural mutations against one list
// and checks that the list still verifies afterwards.
//
// Workers pick random inserts, deletes and indentation toggles over the ids
// they know to exist. Requests rejected because another worker got there
// first (NotFound, InvalidOperation) are expected and counted separately;
// integrity and store failures are errors.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mschirtzinger/tasktree/internal/ordering"
	"github.com/mschirtzinger/tasktree/internal/tasks"
)

// TestList is a populated list under load.
type TestList struct {
	Engine *ordering.Engine
	ListID string

	mu  sync.Mutex
	ids []string
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration // Median
	P95        time.Duration
	P99        time.Duration
	Operations int
	Rejected   int
	Errors     int
	Durations  []time.Duration `json:"-"`
}

// CreateTestList creates a list with numTasks tasks. Every fourth task is
// a subtask of the base task before it.
func CreateTestList(ctx context.Context, engine *ordering.Engine, title string, numTasks int) (*TestList, error) {
	list, err := engine.Store().CreateList(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("failed to create list: %w", err)
	}

	tl := &TestList{
		Engine: engine,
		ListID: list.ID,
		ids:    make([]string, 0, numTasks),
	}

	var prev *tasks.Task
	for i := 0; i < numTasks; i++ {
		anchor := ordering.Top()
		switch {
		case prev == nil:
		case i%4 == 3:
			anchor = ordering.Under(baseOf(prev))
		default:
			anchor = ordering.After(prev.ID)
		}

		t, err := engine.Insert(ctx, list.ID, tasks.Content{Title: fmt.Sprintf("Task %d", i)}, anchor)
		if err != nil {
			return nil, fmt.Errorf("failed to insert task %d: %w", i, err)
		}
		tl.ids = append(tl.ids, t.ID)
		prev = t
	}

	return tl, nil
}

func baseOf(t *tasks.Task) string {
	if t.IsSubtask() {
		return t.ParentID
	}
	return t.ID
}

// Len returns the number of tasks the workers believe exist.
func (tl *TestList) Len() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return len(tl.ids)
}

func (tl *TestList) pick(rng *rand.Rand) string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if len(tl.ids) == 0 {
		return ""
	}
	return tl.ids[rng.Intn(len(tl.ids))]
}

func (tl *TestList) add(id string) {
	tl.mu.Lock()
	tl.ids = append(tl.ids, id)
	tl.mu.Unlock()
}

func (tl *TestList) remove(deleted []string) {
	gone := make(map[string]bool, len(deleted))
	for _, id := range deleted {
		gone[id] = true
	}
	tl.mu.Lock()
	kept := tl.ids[:0]
	for _, id := range tl.ids {
		if !gone[id] {
			kept = append(kept, id)
		}
	}
	tl.ids = kept
	tl.mu.Unlock()
}

// mutate performs one random operation.
func (tl *TestList) mutate(ctx context.Context, rng *rand.Rand, worker, seq int) error {
	content := tasks.Content{Title: fmt.Sprintf("w%d-%d", worker, seq)}
	target := tl.pick(rng)

	roll := rng.Intn(10)
	if target == "" {
		roll = 0
	}

	switch {
	case roll < 2:
		t, err := tl.Engine.Insert(ctx, tl.ListID, content, ordering.Top())
		if err == nil {
			tl.add(t.ID)
		}
		return err
	case roll < 4:
		t, err := tl.Engine.Insert(ctx, tl.ListID, content, ordering.After(target))
		if err == nil {
			tl.add(t.ID)
		}
		return err
	case roll < 6:
		t, err := tl.Engine.Insert(ctx, tl.ListID, content, ordering.Under(target))
		if err == nil {
			tl.add(t.ID)
		}
		return err
	case roll < 8:
		deleted, err := tl.Engine.Delete(ctx, target)
		if err == nil {
			tl.remove(deleted)
		}
		return err
	default:
		_, err := tl.Engine.ToggleIndentation(ctx, target)
		return err
	}
}

// RunConcurrentMutations runs numWorkers workers performing opsPerWorker
// random mutations each, then verifies the list. seed makes the operation
// mix reproducible per worker; the interleaving is not.
func (tl *TestList) RunConcurrentMutations(ctx context.Context, numWorkers, opsPerWorker int, seed int64) (*LatencyStats, error) {
	var wg sync.WaitGroup
	resultsChan := make(chan workerResult, numWorkers)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed + int64(worker)))

			var res workerResult
			res.durations = make([]time.Duration, 0, opsPerWorker)
			for j := 0; j < opsPerWorker; j++ {
				if ctx.Err() != nil {
					break
				}
				start := time.Now()
				err := tl.mutate(ctx, rng, worker, j)
				res.durations = append(res.durations, time.Since(start))

				switch {
				case err == nil:
				case tasks.IsClientError(err):
					res.rejected++
				default:
					res.errs = append(res.errs, fmt.Errorf("worker %d op %d: %w", worker, j, err))
				}
			}
			resultsChan <- res
		}(i)
	}

	wg.Wait()
	close(resultsChan)

	var all []time.Duration
	var rejected int
	var errs []error
	for res := range resultsChan {
		all = append(all, res.durations...)
		rejected += res.rejected
		errs = append(errs, res.errs...)
	}

	stats := computeLatencyStats(all)
	stats.Rejected = rejected
	stats.Errors = len(errs)

	if err := tl.Engine.Verify(ctx, tl.ListID); err != nil {
		return stats, fmt.Errorf("list failed verification after load: %w", err)
	}
	if len(errs) > 0 {
		return stats, fmt.Errorf("%d operation(s) failed, first: %w", len(errs), errs[0])
	}
	return stats, nil
}

type workerResult struct {
	durations []time.Duration
	rejected  int
	errs      []error
}

// RunConcurrentReads runs numReaders readers, each listing the whole list
// readsPerReader times and checking the result is ordered.
func (tl *TestList) RunConcurrentReads(ctx context.Context, numReaders, readsPerReader int) (*LatencyStats, error) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var all []time.Duration
	var firstErr error
	var errCount int

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()
			durations := make([]time.Duration, 0, readsPerReader)
			for j := 0; j < readsPerReader; j++ {
				start := time.Now()
				_, err := tl.Engine.List(ctx, tl.ListID)
				durations = append(durations, time.Since(start))
				if err != nil {
					mu.Lock()
					errCount++
					if firstErr == nil {
						firstErr = fmt.Errorf("reader %d read %d: %w", reader, j, err)
					}
					mu.Unlock()
				}
			}
			mu.Lock()
			all = append(all, durations...)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	stats := computeLatencyStats(all)
	stats.Errors = errCount
	return stats, firstErr
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(durations)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		Operations: len(durations),
		Durations:  sorted,
	}
}

// PrintStats formats latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Operations:    %d\n", s.Operations)
	fmt.Fprintf(w, "  Rejected:      %d\n", s.Rejected)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
