package adapter

import (
	"github.com/mcuadros/go-defaults"
)

// Options configures adapter buffering and cancellation behavior.
type Options struct {
	// ScanBuffer bounds each scan session channel, dropping the oldest
	// result when full. 0 keeps every result.
	ScanBuffer int `default:"0" yaml:"scan_buffer" json:"scan_buffer"`
	// NotificationBuffer bounds the value notification channel of each
	// peripheral. 0 keeps every notification.
	NotificationBuffer int `default:"0" yaml:"notification_buffer" json:"notification_buffer"`
	// CancelConnectOnAbandon issues a cancel-connection command when a
	// Connect caller stops waiting.
	CancelConnectOnAbandon bool `default:"true" yaml:"cancel_connect_on_abandon" json:"cancel_connect_on_abandon"`
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
	return *opts
}
