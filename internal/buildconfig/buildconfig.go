package buildconfig

// Build-time variables injected via ldflags:
//
//	-X github.com/Harshitk-cp/synapse/internal/buildconfig.version=v1.2.0
//	-X github.com/Harshitk-cp/synapse/internal/buildconfig.commit=$(git rev-parse --short HEAD)
var (
	version = "dev"
	commit  = "unknown"
)

// Version returns the build version
func Version() string {
	return version
}

// Commit returns the git commit hash
func Commit() string {
	return commit
}

// UserAgent identifies synapse clients to the server.
func UserAgent() string {
	return "synapse/" + version + " (" + commit + ")"
}

// VersionInfo returns full version information
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}
