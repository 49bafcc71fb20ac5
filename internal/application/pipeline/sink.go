package pipeline

import (
	"context"

	"github.com/turtacn/KeyIP-MMP/internal/application/pairing"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// FragmentFingerprint is the environment fingerprint of one changing
// fragment of a run.
type FragmentFingerprint struct {
	Key      string
	Fragment string
	ID       string
	Bits     int
	Vector   []byte
}

// Report is everything a run produced, as handed to the sinks.  Pairing
// holds the resolved options, so sinks can render the same optional
// columns the caller asked for.
type Report struct {
	Response     *mmp.RunResponse
	Pairing      pairing.Options
	Fingerprints []FragmentFingerprint
}

// Sink receives the report of every finished run.  Sink failures are
// logged and recorded in the run summary; they never fail the run.
type Sink interface {
	Name() string
	Publish(ctx context.Context, report *Report) error
}

// FingerprintConsumer marks a Sink that wants FragmentFingerprints.  They
// are only computed when such a sink is configured.
type FingerprintConsumer interface {
	WantsFingerprints() bool
}
