package transport

import (
	"github.com/flowrise/focusync/internal/log"
)

// Dial constructs the transport, degrading to synthetic mode when no
// real channel can be established. Construction never fails: an
// unreachable endpoint is a degraded state, not an error.
func Dial(opts Options) Transport {
	opts = opts.withDefaults()
	if opts.URL == "" {
		return newSynthetic(opts)
	}
	ch, err := dialChannel(opts)
	if err != nil {
		logger := log.WithComponent("transport")
		logger.Warn().Err(err).
			Str(log.FieldEndpoint, opts.URL).
			Msg("channel dial failed, degrading to synthetic mode")
		return newSynthetic(opts)
	}
	return ch
}
