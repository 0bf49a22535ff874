package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// RequireEqualProto asserts that two Protobuf messages are equal.
// Protobuf messages contain internal state, which is why they cannot
// be compared using require.Equal().
func RequireEqualProto(t testing.TB, want, got proto.Message) {
	t.Helper()
	if !proto.Equal(want, got) {
		require.Fail(t, "Not equal", "Expected: %v\nActual: %v", want, got)
	}
}

// RequireEqualStatus asserts that two errors are equal gRPC statuses.
// A nil error is considered equal to a status with code OK.
func RequireEqualStatus(t testing.TB, want, got error) {
	t.Helper()
	RequireEqualProto(t, status.Convert(want).Proto(), status.Convert(got).Proto())
}
