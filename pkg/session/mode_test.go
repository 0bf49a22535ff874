package session_test

import (
	"testing"

	"github.com/buildbarn/bb-disktest/pkg/session"
	"github.com/buildbarn/bb-disktest/pkg/testutil"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestParseMode(t *testing.T) {
	for name, expected := range map[string]session.Mode{
		"":             session.ModeWriteVerify,
		"WRITE_VERIFY": session.ModeWriteVerify,
		"write":        session.ModeWrite,
		"Verify":       session.ModeVerify,
	} {
		mode, err := session.ParseMode(name)
		require.NoError(t, err)
		require.Equal(t, expected, mode)
	}

	_, err := session.ParseMode("READ")
	testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Unknown mode \"READ\""), err)
}

func TestParseMismatchPolicy(t *testing.T) {
	for name, expected := range map[string]session.MismatchPolicy{
		"":              session.MismatchPolicyStopOnFirst,
		"stop_on_first": session.MismatchPolicyStopOnFirst,
		"SCAN_ALL":      session.MismatchPolicyScanAll,
	} {
		policy, err := session.ParseMismatchPolicy(name)
		require.NoError(t, err)
		require.Equal(t, expected, policy)
	}

	_, err := session.ParseMismatchPolicy("IGNORE")
	testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Unknown mismatch policy \"IGNORE\""), err)
}
