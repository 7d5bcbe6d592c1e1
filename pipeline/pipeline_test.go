package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipelineThreadStages(t *testing.T) {
	double := &Stage[int]{Name: "double", Kind: Thread, Fn: func(ctx context.Context, n int) (int, error) {
		return n * 2, nil
	}}
	addOne := &Stage[int]{Name: "add-one", Kind: Thread, Fn: func(ctx context.Context, n int) (int, error) {
		return n + 1, nil
	}}

	p := New[int](4, double, addOne)
	defer p.Shutdown()

	ctx := context.Background()
	results, errs := RunAll(ctx, p, []int{1, 2, 3, 4, 5})
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, []int{3, 5, 7, 9, 11}, results)
}

func TestPipelinePerItemFailureIsolated(t *testing.T) {
	failOdd := &Stage[int]{Name: "fail-odd", Kind: Thread, Fn: func(ctx context.Context, n int) (int, error) {
		if n%2 == 1 {
			return 0, fmt.Errorf("odd: %d", n)
		}
		return n, nil
	}}
	p := New[int](2, failOdd)
	defer p.Shutdown()

	results, errs := RunAll(context.Background(), p, []int{1, 2, 3, 4})
	require.NoError(t, errs[1])
	require.NoError(t, errs[3])
	require.Error(t, errs[0])
	require.Error(t, errs[2])
	require.Equal(t, 2, results[1])
	require.Equal(t, 4, results[3])
}

func TestShutdownRejectsNewSubmissions(t *testing.T) {
	noop := &Stage[int]{Name: "noop", Kind: Thread, Fn: func(ctx context.Context, n int) (int, error) { return n, nil }}
	p := New[int](1, noop)
	p.Shutdown()

	_, err := p.Submit(context.Background(), 1)
	require.ErrorIs(t, err, ErrPipelineClosed)
}
