package configuration

import (
	"runtime"
	"time"

	"github.com/buildbarn/bb-disktest/pkg/blockdevice"
	"github.com/buildbarn/bb-disktest/pkg/global"
	"github.com/buildbarn/bb-disktest/pkg/keystream"
	"github.com/buildbarn/bb-disktest/pkg/partition"
	"github.com/buildbarn/bb-disktest/pkg/random"
	"github.com/buildbarn/bb-disktest/pkg/session"
	"github.com/buildbarn/bb-disktest/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultMaximumRetries      = 3
	defaultShutdownGracePeriod = 30 * time.Second
	defaultProgressInterval    = 10 * time.Second
)

// ApplicationConfiguration of bb_disktest, as stored in a Jsonnet file.
type ApplicationConfiguration struct {
	Global *global.Configuration `json:"global"`

	// Path of the block device or regular file to test.
	DevicePath string `json:"devicePath"`

	// Seed of the pattern. If left empty, a seed is generated. It
	// is logged, so that it can be provided to subsequent sessions
	// that verify the data.
	Seed          string `json:"seed"`
	Algorithm     string `json:"algorithm"`
	InvertPattern bool   `json:"invertPattern"`

	OffsetBytes    int64 `json:"offsetBytes"`
	LengthBytes    int64 `json:"lengthBytes"`
	BlockSizeBytes int   `json:"blockSizeBytes"`

	// Number of workers. Zero causes one worker to be used per
	// CPU.
	Workers         int    `json:"workers"`
	Mode            string `json:"mode"`
	MismatchPolicy  string `json:"mismatchPolicy"`
	PartitionPolicy string `json:"partitionPolicy"`

	// Whether to bypass the page cache. Enabled if not provided.
	DirectIO     *bool `json:"directIo"`
	SharedHandle bool  `json:"sharedHandle"`

	// Retries of transient I/O errors. Defaults to three retries.
	MaximumRetries *int   `json:"maximumRetries"`
	RetryInterval  string `json:"retryInterval"`

	ShutdownGracePeriod string `json:"shutdownGracePeriod"`
	ProgressInterval    string `json:"progressInterval"`
}

// GetApplicationConfiguration reads the configuration of bb_disktest
// from a Jsonnet file.
func GetApplicationConfiguration(path string) (*ApplicationConfiguration, error) {
	var configuration ApplicationConfiguration
	if err := util.UnmarshalConfigurationFromFile(path, &configuration); err != nil {
		return nil, util.StatusWrapf(err, "Failed to read configuration from %#v", path)
	}
	return &configuration, nil
}

// NewSessionOptionsFromConfiguration converts the configuration of
// bb_disktest to options of a session. Parameters that are omitted are
// replaced by their defaults, and a seed is generated if none is
// provided.
func NewSessionOptionsFromConfiguration(configuration *ApplicationConfiguration, randomGenerator random.SingleThreadedGenerator) (session.Options, error) {
	if configuration.DevicePath == "" {
		return session.Options{}, status.Error(codes.InvalidArgument, "No device path provided")
	}
	algorithm, err := keystream.ParseAlgorithm(configuration.Algorithm)
	if err != nil {
		return session.Options{}, err
	}
	mode, err := session.ParseMode(configuration.Mode)
	if err != nil {
		return session.Options{}, err
	}
	mismatchPolicy, err := session.ParseMismatchPolicy(configuration.MismatchPolicy)
	if err != nil {
		return session.Options{}, err
	}
	partitionPolicy, err := partition.ParsePolicy(configuration.PartitionPolicy)
	if err != nil {
		return session.Options{}, err
	}
	retryInterval, err := parseDuration("retry interval", configuration.RetryInterval, 0)
	if err != nil {
		return session.Options{}, err
	}
	shutdownGracePeriod, err := parseDuration("shutdown grace period", configuration.ShutdownGracePeriod, defaultShutdownGracePeriod)
	if err != nil {
		return session.Options{}, err
	}
	progressInterval, err := parseDuration("progress interval", configuration.ProgressInterval, defaultProgressInterval)
	if err != nil {
		return session.Options{}, err
	}

	var seed []byte
	if configuration.Seed == "" {
		seed = keystream.GenerateSeed(randomGenerator)
	} else {
		seed = []byte(configuration.Seed)
	}
	workers := configuration.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	directIO := true
	if configuration.DirectIO != nil {
		directIO = *configuration.DirectIO
	}
	maximumRetries := defaultMaximumRetries
	if configuration.MaximumRetries != nil {
		maximumRetries = *configuration.MaximumRetries
	}

	return session.Options{
		Opener:              blockdevice.NewPathOpener(configuration.DevicePath),
		DeviceName:          configuration.DevicePath,
		Seed:                seed,
		Algorithm:           algorithm,
		InvertPattern:       configuration.InvertPattern,
		OffsetBytes:         configuration.OffsetBytes,
		LengthBytes:         configuration.LengthBytes,
		BlockSizeBytes:      configuration.BlockSizeBytes,
		Workers:             workers,
		Mode:                mode,
		MismatchPolicy:      mismatchPolicy,
		PartitionPolicy:     partitionPolicy,
		DirectIO:            directIO,
		SharedHandle:        configuration.SharedHandle,
		MaximumRetries:      maximumRetries,
		RetryInterval:       retryInterval,
		ShutdownGracePeriod: shutdownGracePeriod,
		ProgressInterval:    progressInterval,
	}, nil
}

func parseDuration(name, value string, defaultValue time.Duration) (time.Duration, error) {
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "Invalid %s: %s", name, err)
	}
	if d < 0 {
		return 0, status.Errorf(codes.InvalidArgument, "Invalid %s: Duration %s is negative", name, d)
	}
	return d, nil
}
