// Package supervisor builds suture supervisors that report through zerolog.
package supervisor

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/sadopc/tally/internal/logging"
)

// Config tunes restart behaviour. Zero values take the defaults below.
type Config struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// New returns a supervisor whose lifecycle events go to the log.
func New(name string, cfg Config) *suture.Supervisor {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 5 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	log := logging.Component("supervisor").With().Str("tree", name).Logger()
	return suture.New(name, suture.Spec{
		EventHook:        eventHook(log),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})
}

//nolint:gocritic // zerolog.Logger is passed by value
func eventHook(log zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
			log.Warn().Fields(e.Map()).Msg(e.String())
		case suture.EventTypeBackoff:
			log.Warn().Msg(e.String())
		default:
			log.Debug().Fields(e.Map()).Msg(e.String())
		}
	}
}
