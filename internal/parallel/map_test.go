package parallel_test

import (
	"context"
	"errors"
	"iter"
	"testing"
	"testing/synctest"
	"time"

	"github.com/CZERTAINLY/Vetter/internal/parallel"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMap(t *testing.T) {
	t.Parallel()

	f := func(_ context.Context, d time.Duration) (int, error) {
		time.Sleep(d)
		return int(d), nil
	}

	input := []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}
	all4 := []int{
		int(1 * time.Second),
		int(2 * time.Second),
		int(5 * time.Second),
		int(10 * time.Second),
	}

	type given struct {
		limit int
		ctx   func(t *testing.T) context.Context
	}
	type then struct {
		values  []int
		elapsed time.Duration
	}
	tCtx := func(t *testing.T) context.Context {
		t.Helper()
		return t.Context()
	}
	tmout1500ms := func(t *testing.T) context.Context {
		t.Helper()
		ctx, cancel := context.WithTimeout(t.Context(), 1500*time.Millisecond)
		t.Cleanup(cancel)
		return ctx
	}

	var testCases = []struct {
		scenario string
		given    given
		then     then
	}{
		{"limit 1", given{1, tCtx}, then{all4, 18 * time.Second}},
		{"limit 10", given{10, tCtx}, then{all4, 10 * time.Second}},
		{"limit 0 means 1", given{0, tCtx}, then{all4, 18 * time.Second}},
		// the second item is running when the timeout hits, it completes
		{"limit 1, cancel 1.5s", given{1, tmout1500ms}, then{all4[:2], 3 * time.Second}},
		// all items are running, nothing is lost
		{"limit 10, cancel 1.5s", given{10, tmout1500ms}, then{all4, 10 * time.Second}},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			synctest.Test(t, func(t *testing.T) {
				start := time.Now()
				m1 := parallel.NewMap(tt.given.ctx(t), tt.given.limit, f).Iter(all(input))
				require.ElementsMatch(t, tt.then.values, values(m1))
				require.Equal(t, tt.then.elapsed, time.Since(start))
			})
		})
	}
}

func TestMap_Errors(t *testing.T) {
	t.Parallel()

	errOdd := errors.New("odd")
	errInput := errors.New("input")
	f := func(_ context.Context, i int) (int, error) {
		if i%2 == 1 {
			return i, errOdd
		}
		return i, nil
	}
	seq := func(yield func(int, error) bool) {
		for i := range 4 {
			if !yield(i, nil) {
				return
			}
		}
		yield(0, errInput)
	}

	var oks []int
	var errs []error
	for d, err := range parallel.NewMap(t.Context(), 2, f).Iter(seq) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		oks = append(oks, d)
	}
	require.ElementsMatch(t, []int{0, 2}, oks)
	require.ElementsMatch(t, []error{errOdd, errOdd, errInput}, errs)
}

func TestMap_Break(t *testing.T) {
	t.Parallel()

	f := func(_ context.Context, i int) (int, error) {
		return i, nil
	}
	seq := func(yield func(int, error) bool) {
		for i := range 1000 {
			if !yield(i, nil) {
				return
			}
		}
	}

	n := 0
	for range parallel.NewMap(t.Context(), 4, f).Iter(seq) {
		n++
		if n == 3 {
			break
		}
	}
	require.Equal(t, 3, n)
	// goleak in TestMain checks the workers are gone
}

func all[T any](s []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, x := range s {
			if !yield(x, nil) {
				return
			}
		}
	}
}

func values[T any](i iter.Seq2[T, error]) []T {
	var ret []T
	for k := range i {
		ret = append(ret, k)
	}
	return ret
}
