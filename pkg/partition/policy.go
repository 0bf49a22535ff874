package partition

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Policy for distributing the blocks of a range across workers.
type Policy int

const (
	// PolicyStriped assigns blocks to workers in a round robin
	// fashion. Worker i processes every N-th block, starting at
	// block i of the range. All workers make progress through the
	// range at roughly the same pace, which causes I/O to remain
	// close to sequential on rotational media.
	PolicyStriped Policy = iota
	// PolicyContiguous splits the range into N slabs of nearly
	// equal size, each processed by a single worker.
	PolicyContiguous
)

// DefaultPolicy is used when no policy is configured explicitly.
const DefaultPolicy = PolicyStriped

var policyNames = map[Policy]string{
	PolicyStriped:    "STRIPED",
	PolicyContiguous: "CONTIGUOUS",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParsePolicy converts the name of a policy, as used in configuration
// files, to its enumeration value. The empty string yields the
// default policy.
func ParsePolicy(name string) (Policy, error) {
	if name == "" {
		return DefaultPolicy, nil
	}
	for policy, policyName := range policyNames {
		if strings.EqualFold(name, policyName) {
			return policy, nil
		}
	}
	return 0, status.Errorf(codes.InvalidArgument, "Unknown partition policy %#v", name)
}
