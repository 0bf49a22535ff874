package global

// Configuration options that apply to the process as a whole, as
// opposed to the session that is run by it.
type Configuration struct {
	// Paths of files to which log messages are written, in addition
	// to standard error.
	LogPaths []string `json:"logPaths"`
	// Umask to apply to files created by the process, such as the
	// image files that are tested.
	SetUmask *SetUmaskConfiguration `json:"setUmask"`
	// Resource limits to apply using setrlimit(2), keyed by their
	// name without the "RLIMIT_" prefix.
	SetResourceLimits map[string]SetResourceLimitConfiguration `json:"setResourceLimits"`
	// Fraction of mutex contention events to report, as passed to
	// runtime.SetMutexProfileFraction().
	MutexProfileFraction int `json:"mutexProfileFraction"`
	// HTTP server that exposes metrics and profiling data while the
	// session is running.
	DiagnosticsHTTPServer *DiagnosticsHTTPServerConfiguration `json:"diagnosticsHttpServer"`
}

// SetUmaskConfiguration contains the umask that should be set.
type SetUmaskConfiguration struct {
	Umask uint32 `json:"umask"`
}

// SetResourceLimitConfiguration contains the soft and hard limit of a
// resource. Limits that are not provided are set to infinity.
type SetResourceLimitConfiguration struct {
	SoftLimit *uint64 `json:"softLimit"`
	HardLimit *uint64 `json:"hardLimit"`
}

// DiagnosticsHTTPServerConfiguration contains the options of the
// diagnostics HTTP server.
type DiagnosticsHTTPServerConfiguration struct {
	ListenAddress    string `json:"listenAddress"`
	EnablePrometheus bool   `json:"enablePrometheus"`
	EnablePprof      bool   `json:"enablePprof"`
}
