package facilitator

import (
	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
)

type Option func(*Facilitator)

func WithLogger(l logger.Logger) Option {
	return func(f *Facilitator) {
		f.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(f *Facilitator) {
		f.metrics = r
	}
}

// WithVerifierFactory overrides how verifiers are built. Tests inject
// stubs here.
func WithVerifierFactory(factory VerifierFactory) Option {
	return func(f *Facilitator) {
		f.verifiers = factory
	}
}

// WithSettlerFactory overrides how settlers are built.
func WithSettlerFactory(factory SettlerFactory) Option {
	return func(f *Facilitator) {
		f.settlers = factory
	}
}

// WithDisburser overrides the cashback disburser.
func WithDisburser(d Disburser) Option {
	return func(f *Facilitator) {
		f.disburser = d
	}
}

// WithFeePayerFunc overrides how the SVM fee-payer address is derived
// for the supported-kinds listing.
func WithFeePayerFunc(fn func() (string, error)) Option {
	return func(f *Facilitator) {
		f.feePayer = fn
	}
}
