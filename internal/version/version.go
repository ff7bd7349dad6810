package version

// Name is the service name used for telemetry and logging.
const Name = "podvaultd"

// Version is overridden at build time via -ldflags.
var Version = "dev"
