package blockdevice_test

import (
	"testing"

	"github.com/buildbarn/bb-disktest/internal/mock"
	"github.com/buildbarn/bb-disktest/pkg/blockdevice"
	"github.com/buildbarn/bb-disktest/pkg/testutil"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.uber.org/mock/gomock"
)

func TestAlignmentCheckingBlockDevice(t *testing.T) {
	ctrl := gomock.NewController(t)

	baseBlockDevice := mock.NewMockBlockDevice(ctrl)
	blockDevice := blockdevice.NewAlignmentCheckingBlockDevice(baseBlockDevice, 512)

	t.Run("MisalignedOffset", func(t *testing.T) {
		// Misaligned operations may not be forwarded, so that
		// no partial I/O takes place.
		_, err := blockDevice.WriteAt(make([]byte, 512), 100)
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Offset 100 is not aligned to 512 bytes"), err)

		_, err = blockDevice.ReadAt(make([]byte, 512), 513)
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Offset 513 is not aligned to 512 bytes"), err)
	})

	t.Run("MisalignedSize", func(t *testing.T) {
		_, err := blockDevice.WriteAt(make([]byte, 1000), 1024)
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Size 1000 is not aligned to 512 bytes"), err)
	})

	t.Run("Aligned", func(t *testing.T) {
		baseBlockDevice.EXPECT().WriteAt(gomock.Len(1024), int64(2048)).Return(1024, nil)
		n, err := blockDevice.WriteAt(make([]byte, 1024), 2048)
		require.NoError(t, err)
		require.Equal(t, 1024, n)

		baseBlockDevice.EXPECT().ReadAt(gomock.Len(512), int64(0)).Return(512, nil)
		n, err = blockDevice.ReadAt(make([]byte, 512), 0)
		require.NoError(t, err)
		require.Equal(t, 512, n)
	})

	t.Run("Sync", func(t *testing.T) {
		baseBlockDevice.EXPECT().Sync()
		require.NoError(t, blockDevice.Sync())
	})
}
