package cleanup

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardRunsTasksInReverseOrder(t *testing.T) {
	guard := NewGuard()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		guard.Register(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, guard.Run())
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestGuardRunsExactlyOnce(t *testing.T) {
	guard := NewGuard()

	count := 0
	guard.Register("counter", func() error {
		count++
		return nil
	})

	require.NoError(t, guard.Run())
	require.NoError(t, guard.Run())
	assert.Equal(t, 1, count)
}

func TestGuardRunsEveryTaskDespiteFailures(t *testing.T) {
	guard := NewGuard()
	sentinel := errors.New("disk on fire")

	var order []string
	guard.Register("innermost", func() error {
		order = append(order, "innermost")
		return nil
	})
	guard.Register("failing", func() error {
		order = append(order, "failing")
		return sentinel
	})
	guard.Register("outermost", func() error {
		order = append(order, "outermost")
		return nil
	})

	err := guard.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, []string{"outermost", "failing", "innermost"}, order)
}

func TestGuardRecoversFromPanickingTask(t *testing.T) {
	guard := NewGuard()

	survived := false
	guard.Register("survivor", func() error {
		survived = true
		return nil
	})
	guard.Register("panicking", func() error {
		panic("boom")
	})

	err := guard.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: boom")
	assert.True(t, survived, "tasks after the panicking one must still run")
}

func TestGuardIgnoresRegistrationAfterRun(t *testing.T) {
	guard := NewGuard()
	require.NoError(t, guard.Run())

	executed := false
	guard.Register("late", func() error {
		executed = true
		return nil
	})

	require.NoError(t, guard.Run())
	assert.False(t, executed)
}

func TestGuardConcurrentRun(t *testing.T) {
	guard := NewGuard()

	count := 0
	guard.Register("counter", func() error {
		count++
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = guard.Run()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, count)
}
