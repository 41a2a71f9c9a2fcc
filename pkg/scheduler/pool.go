package scheduler

import (
	"context"
	"fmt"
	"sync"
)

type dispatchFunc func(ctx context.Context, job *Job, cfg Configuration) (*Result, error)

// dispatchPool runs every job of set through dispatch with at most
// cfg.MaxParallel workers. Results keep the order of set.Jobs; a job that
// could not be started leaves a nil entry and its error is returned.
func dispatchPool(ctx context.Context, set *JobSet, cfg Configuration, dispatch dispatchFunc) ([]*Result, error) {
	results := make([]*Result, len(set.Jobs))
	if len(set.Jobs) == 0 {
		return results, nil
	}

	workerCount := cfg.MaxParallel
	if workerCount < 1 {
		workerCount = 1
	}
	if len(set.Jobs) < workerCount {
		workerCount = len(set.Jobs)
	}

	workQueue := make(chan int, len(set.Jobs))
	for i := range set.Jobs {
		workQueue <- i
	}
	close(workQueue)

	var wg sync.WaitGroup
	errChan := make(chan error, len(set.Jobs))

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for idx := range workQueue {
				select {
				case <-ctx.Done():
					errChan <- ctx.Err()
					return
				default:
				}

				job := set.Jobs[idx]
				res, err := dispatch(ctx, job, cfg)
				results[idx] = res
				if err != nil {
					errChan <- fmt.Errorf("job %s of set %s failed: %w", job.Name, set.Name, err)
				}
			}
		}()
	}

	wg.Wait()
	close(errChan)

	var firstErr error
	for err := range errChan {
		if firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}
