package config

import "time"

const (
	DefaultListenAddr    = "127.0.0.1:8080"
	DefaultFlowTTL       = 15 * time.Minute
	DefaultSweepInterval = time.Minute
)

// DefaultLogDir returns the default audit log directory path.
func DefaultLogDir() string {
	return "~/.stepgate/logs"
}
