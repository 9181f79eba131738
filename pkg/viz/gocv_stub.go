//go:build !gocv

package viz

import (
	"fmt"
	"log/slog"
)

// newGocvBackend returns an error when built without the gocv tag.
func newGocvBackend(opts GocvOptions, logger *slog.Logger) (Backend, error) {
	return nil, fmt.Errorf("%w: built without -tags gocv", ErrBackendUnavailable)
}
