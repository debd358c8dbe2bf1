// Package buildinfo exposes version stamps injected with -ldflags.
package buildinfo

import "time"

// Set via -ldflags "-X github.com/silq-qms/qmsgo/internal/buildinfo.CommitHash=..."
var (
	BuildTime  string
	CommitHash string
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC().Format(time.RFC3339)

// Fields returns the stamps for health output and startup logs
func Fields() map[string]string {
	return map[string]string{
		"buildTime":  BuildTime,
		"commitHash": CommitHash,
		"startTime":  StartTime,
	}
}
