package global

import (
	"context"
	"io"
	"log"
	"net/http"

	// The pprof package does not provide a function for registering
	// its endpoints against an arbitrary mux. Load it to force
	// registration against the default mux, so we can forward
	// traffic to that mux instead.
	_ "net/http/pprof"
	"os"
	"runtime"
	"sort"

	"github.com/buildbarn/bb-disktest/pkg/program"
	"github.com/buildbarn/bb-disktest/pkg/util"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ApplyConfiguration applies configuration options to the running
// process. If a diagnostics HTTP server is configured, it is launched
// as a dependency, meaning it keeps on serving metrics until the
// session has finished.
func ApplyConfiguration(configuration *Configuration, dependenciesGroup program.Group) error {
	if configuration == nil {
		configuration = &Configuration{}
	}

	// Set the umask, if requested.
	if setUmaskConfiguration := configuration.SetUmask; setUmaskConfiguration != nil {
		if err := setUmask(setUmaskConfiguration.Umask); err != nil {
			return util.StatusWrap(err, "Failed to set umask")
		}
	}

	// Logging.
	logWriters := append(make([]io.Writer, 0, len(configuration.LogPaths)+1), os.Stderr)
	for _, logPath := range configuration.LogPaths {
		w, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
		if err != nil {
			return util.StatusWrapf(err, "Failed to open log path %#v", logPath)
		}
		logWriters = append(logWriters, w)
	}
	log.SetOutput(io.MultiWriter(logWriters...))

	// Apply resource limits in a deterministic order, so that
	// errors are reported consistently.
	resourceNames := make([]string, 0, len(configuration.SetResourceLimits))
	for name := range configuration.SetResourceLimits {
		resourceNames = append(resourceNames, name)
	}
	sort.Strings(resourceNames)
	for _, name := range resourceNames {
		if err := setResourceLimit(name, configuration.SetResourceLimits[name]); err != nil {
			return util.StatusWrapf(err, "Failed to set resource limit %#v", name)
		}
	}

	// Enable mutex profiling.
	runtime.SetMutexProfileFraction(configuration.MutexProfileFraction)

	if diagnosticsConfiguration := configuration.DiagnosticsHTTPServer; diagnosticsConfiguration != nil {
		server := &http.Server{
			Addr:    diagnosticsConfiguration.ListenAddress,
			Handler: newDiagnosticsRouter(diagnosticsConfiguration),
		}
		dependenciesGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
			siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				<-ctx.Done()
				return server.Close()
			})
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return util.StatusWrapf(err, "Diagnostics HTTP server on %#v", diagnosticsConfiguration.ListenAddress)
			}
			return nil
		})
	}
	return nil
}

// newDiagnosticsRouter creates the HTTP handler of the diagnostics
// server, exposing a health check, Prometheus metrics and profiling
// data.
func newDiagnosticsRouter(configuration *DiagnosticsHTTPServerConfiguration) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/-/healthy", func(http.ResponseWriter, *http.Request) {})
	if configuration.EnablePrometheus {
		router.Handle("/metrics", promhttp.Handler())
	}
	if configuration.EnablePprof {
		router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	}
	return router
}
