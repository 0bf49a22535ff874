package main

import (
	"context"
	"log"
	"os"

	"github.com/buildbarn/bb-disktest/pkg/configuration"
	"github.com/buildbarn/bb-disktest/pkg/global"
	"github.com/buildbarn/bb-disktest/pkg/program"
	"github.com/buildbarn/bb-disktest/pkg/random"
	"github.com/buildbarn/bb-disktest/pkg/session"
	"github.com/buildbarn/bb-disktest/pkg/util"
	"github.com/dustin/go-humanize"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func main() {
	program.RunMain(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		if len(os.Args) != 2 {
			return status.Error(codes.InvalidArgument, "Usage: bb_disktest bb_disktest.jsonnet")
		}
		applicationConfiguration, err := configuration.GetApplicationConfiguration(os.Args[1])
		if err != nil {
			return err
		}
		if err := global.ApplyConfiguration(applicationConfiguration.Global, dependenciesGroup); err != nil {
			return util.StatusWrap(err, "Failed to apply global configuration options")
		}
		options, err := configuration.NewSessionOptionsFromConfiguration(applicationConfiguration, random.CryptoGenerator)
		if err != nil {
			return util.StatusWrap(err, "Invalid configuration")
		}

		result := session.Run(ctx, options)
		logResult(options.DeviceName, &result)
		switch {
		case result.Status == session.StatusFailed:
			return util.StatusWrapf(result.Failure, "Session %s failed", result.SessionID)
		case result.Status == session.StatusAborted:
			return util.StatusWrapf(result.Failure, "Session %s was aborted", result.SessionID)
		case result.Mismatch != nil:
			return status.Errorf(codes.DataLoss, "Session %s found %d mismatching blocks", result.SessionID, result.Mismatch.MismatchedBlocks)
		}
		return nil
	})
}

// logResult prints a summary of a session. The seed and block size are
// included, as subsequent sessions that verify the data require them.
func logResult(deviceName string, result *session.Result) {
	log.Printf("Session %s of %#v finished with status %s", result.SessionID, deviceName, result.Status)
	log.Printf("Seed %#v, algorithm %s, inverted %t, block size %s, range [%d, %d)",
		string(result.Seed),
		result.Algorithm,
		result.InvertPattern,
		humanize.IBytes(uint64(result.BlockSizeBytes)),
		result.StartBytes,
		result.EndBytes)
	for _, p := range []struct {
		name   string
		result *session.PassResult
	}{
		{"Write", result.WritePass},
		{"Verify", result.VerifyPass},
	} {
		if p.result == nil {
			continue
		}
		throughput := "n/a"
		if seconds := p.result.Duration.Seconds(); seconds > 0 {
			throughput = humanize.IBytes(uint64(float64(p.result.BytesProcessed)/seconds)) + "/s"
		}
		log.Printf("%s pass: %s in %s (%s)", p.name, humanize.IBytes(uint64(p.result.BytesProcessed)), p.result.Duration, throughput)
	}
	if result.UnresponsiveWorkers > 0 {
		log.Printf("%d workers did not respond to cancelation, their I/O may still be in progress", result.UnresponsiveWorkers)
	}
	if m := result.Mismatch; m != nil {
		log.Printf(
			"Mismatch at offset %d (%s), spanning %s with %d mismatching bytes in %d blocks",
			m.OffsetBytes,
			humanize.IBytes(uint64(m.OffsetBytes)),
			humanize.IBytes(uint64(m.LengthBytes)),
			m.MismatchedBytes,
			m.MismatchedBlocks)
		if m.PossibleParameterMismatch {
			log.Print("The data read back is validly encoded, or the very first block differs. Verify that the seed, algorithm and block size match those used when writing.")
		}
	}
}
