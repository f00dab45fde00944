package parallel

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

type result[D any] struct {
	d D
	e error
}

// Map is a parallel mapping function, which can run the mapFuncs in a parallel and wait for
// completions. The input and output are represented as iterators, so the typical usage is.
//
//	for result, err := range pmap.Iter(input) {}
//
// Map is context aware: a canceled context stops scheduling of new items, but
// every mapFunc already running completes and its result is yielded. Errors of
// the input sequence are passed through to the output.
// Results come in the order of completion.
type Map[E, D any] struct {
	ctx     context.Context
	g       *errgroup.Group
	mapped  chan result[D]
	stop    chan struct{}
	mapFunc func(context.Context, E) (D, error)
}

func NewMap[E, D any](ctx context.Context, limit int, mapFunc func(context.Context, E) (D, error)) *Map[E, D] {
	if limit < 1 {
		limit = 1
	}
	g := &errgroup.Group{}
	// one more for the goroutine feeding the workers
	g.SetLimit(limit + 1)

	return &Map[E, D]{
		ctx:     ctx,
		g:       g,
		mapped:  make(chan result[D], limit),
		stop:    make(chan struct{}),
		mapFunc: mapFunc,
	}
}

// send blocks until the consumer takes the result or stops iterating
func (s *Map[E, D]) send(r result[D]) bool {
	select {
	case s.mapped <- r:
		return true
	case <-s.stop:
		return false
	}
}

// done reports if the context was canceled or the consumer went away
func (s *Map[E, D]) done() bool {
	select {
	case <-s.stop:
		return true
	default:
		return s.ctx.Err() != nil
	}
}

func (s *Map[E, D]) goWorkers(seq iter.Seq2[E, error]) {
	s.g.Go(func() error {
		for entry, nerr := range seq {
			if s.done() {
				return nil
			}
			if nerr != nil {
				var zero D
				if !s.send(result[D]{d: zero, e: nerr}) {
					return nil
				}
				continue
			}
			s.g.Go(func() error {
				// the slot may have been acquired after cancellation
				if s.done() {
					return nil
				}
				d, mapErr := s.mapFunc(s.ctx, entry)
				s.send(result[D]{d: d, e: mapErr})
				return nil
			})
		}
		return nil
	})
}

func (s *Map[E, D]) Iter(seq iter.Seq2[E, error]) iter.Seq2[D, error] {
	return func(yield func(D, error) bool) {
		defer close(s.stop)
		s.goWorkers(seq)

		go func() {
			_ = s.g.Wait()
			close(s.mapped)
		}()

		for r := range s.mapped {
			if !yield(r.d, r.e) {
				return
			}
		}
	}
}
