//go:build !unix

package realtime

import "github.com/tphakala/birdnet-pipeline/internal/analysis"

// notifyControls is a no-op where session control signals do not exist.
func notifyControls(chan<- analysis.Control) (stop func()) {
	return func() {}
}
