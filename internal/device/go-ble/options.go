package goble

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// Options configures the go-ble backed stacks.
type Options struct {
	// ConnectTimeout bounds a single dial attempt.
	ConnectTimeout time.Duration `default:"30s" yaml:"connect_timeout" json:"connect_timeout"`
	// AdvertiseSettle is how long advertising must run without error before
	// it is reported as started.
	AdvertiseSettle time.Duration `default:"200ms" yaml:"advertise_settle" json:"advertise_settle"`
}

// DefaultOptions returns Options filled from the struct defaults.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

func orDefault(opts *Options) Options {
	if opts == nil {
		return *DefaultOptions()
	}
	o := *opts
	defaults.SetDefaults(&o)
	return o
}
