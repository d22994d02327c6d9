package util

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/paysync/paysync/pkg/logger"
	"github.com/stretchr/testify/require"
)

func TestCrit(t *testing.T) {
	bg := context.Background()

	t.Run("Plain ol contexts work", func(t *testing.T) {
		called := false
		err := Crit(bg, "foo", func(ctx context.Context) error {
			called = true
			return nil
		})
		require.True(t, called)
		require.NoError(t, err)
	})

	t.Run("Errors are passed back", func(t *testing.T) {
		expectedErr := fmt.Errorf("no way")
		err := Crit(bg, "foo", func(ctx context.Context) error {
			return expectedErr
		})
		require.Equal(t, expectedErr, err)
	})

	t.Run("A cancelled parent does not cancel the section", func(t *testing.T) {
		ctx, cancel := context.WithCancel(bg)
		cancel()

		called := false
		err := Crit(ctx, "release", func(ctx context.Context) error {
			called = true
			return ctx.Err()
		})
		require.True(t, called)
		require.NoError(t, err)
	})

	t.Run("Max duration bounds the section", func(t *testing.T) {
		err := Crit(bg, "slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}, WithMaxDuration(10*time.Millisecond))
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("It should prevent the crit from running with a short deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(bg, 10*time.Millisecond)
		defer cancel()

		called := false
		err := Crit(ctx, "foo", func(ctx context.Context) error {
			called = true
			return nil
		}, WithBoundaries(time.Second))

		require.False(t, called)
		require.Error(t, err)
		require.Contains(t, err.Error(), "context deadline shorter than critical bounds")
	})

	t.Run("It should warn if the crit takes longer than ideal bounds", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		ctx := logger.WithStdlib(bg, logger.New(logger.WithWriter(buf), logger.WithHandler(logger.JSONHandler)))

		val, err := CritT(ctx, "foo", func(ctx context.Context) (int, error) {
			<-time.After(10 * time.Millisecond)
			return 42, nil
		}, WithBoundaries(time.Millisecond))

		require.NoError(t, err)
		require.Equal(t, 42, val)
		require.Contains(t, buf.String(), "critical section took longer than boundary")
	})
}
