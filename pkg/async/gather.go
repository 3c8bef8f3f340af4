package async

import (
	"context"
	"errors"
)

// GatherN waits for every promise and returns the values in order, with all errors joined.
func GatherN[R any](cs ...<-chan Result[R]) ([]R, error) {
	values := make([]R, len(cs))
	var errs []error
	for i, c := range cs {
		r := <-c
		values[i] = r.Value
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return values, errors.Join(errs...)
}

// Map applies f to every item with at most workers calls in flight and returns
// the results in input order. Items not yet started when ctx is done are skipped
// and ctx.Err() is returned.
func Map[T, R any](ctx context.Context, items []T, workers int, f func(int, T) (R, error)) ([]R, error) {
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	promises := make([]<-chan Result[R], 0, len(items))

	for i, item := range items {
		if ctx.Err() != nil {
			_, err := GatherN(promises...)
			return nil, errors.Join(ctx.Err(), err)
		}
		select {
		case <-ctx.Done():
			_, err := GatherN(promises...)
			return nil, errors.Join(ctx.Err(), err)
		case sem <- struct{}{}:
		}
		promises = append(promises, Promise(func() (R, error) {
			defer func() { <-sem }()
			return f(i, item)
		}))
	}

	return GatherN(promises...)
}
