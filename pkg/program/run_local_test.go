package program_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/buildbarn/bb-disktest/pkg/program"
	"github.com/buildbarn/bb-disktest/pkg/testutil"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRunLocal(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var completed atomic.Int32
		require.NoError(t, program.RunLocal(context.Background(), func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
			for i := 0; i < 10; i++ {
				siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
					completed.Add(1)
					return nil
				})
			}
			return nil
		}))
		require.Equal(t, int32(10), completed.Load())
	})

	t.Run("FirstErrorCancelsSiblings", func(t *testing.T) {
		// A failing routine should cause its siblings to be
		// canceled. Only the first error should be returned.
		testutil.RequireEqualStatus(
			t,
			status.Error(codes.Internal, "Worker failed"),
			program.RunLocal(context.Background(), func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
					<-ctx.Done()
					return status.Error(codes.Canceled, "Sibling canceled")
				})
				return status.Error(codes.Internal, "Worker failed")
			}))
	})

	t.Run("DependenciesOutliveSiblings", func(t *testing.T) {
		// Dependencies may only be canceled after all
		// siblings have completed.
		var siblingsDone atomic.Bool
		require.NoError(t, program.RunLocal(context.Background(), func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
			dependenciesGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				<-ctx.Done()
				if !siblingsDone.Load() {
					return status.Error(codes.Internal, "Dependency canceled before siblings completed")
				}
				return nil
			})
			siblingsDone.Store(true)
			return nil
		}))
	})

	t.Run("ParentCancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		testutil.RequireEqualStatus(
			t,
			status.Error(codes.Canceled, "context canceled"),
			program.RunLocal(ctx, func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				<-ctx.Done()
				return status.Error(codes.Canceled, ctx.Err().Error())
			}))
	})
}
