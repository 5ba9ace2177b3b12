package negotiation

import (
	"context"
	"sync"
)

// runAll starts every task in its own goroutine before awaiting any, and
// returns once all of them finished. Results are positional: errs[i] belongs
// to tasks[i]. A task's failure never cancels its siblings; each outcome
// surfaces independently.
func runAll(ctx context.Context, tasks []func(context.Context) error) []error {
	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, run func(context.Context) error) {
			defer wg.Done()
			errs[idx] = run(ctx)
		}(i, task)
	}
	wg.Wait()

	return errs
}

// firstError returns the lowest-index failure of a fan-out batch, or nil
func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
