package adapter

import (
	"context"
	"fmt"

	"github.com/srg/asyncble/internal/correlator"
	"github.com/srg/asyncble/internal/device"
)

// Operation kinds. The duplicate-registration policy of each kind is fixed here.
var (
	KindConnect = correlator.NewKind("connect", correlator.Supersede)

	KindDiscoverServices         = correlator.NewKind("discover-services", correlator.Reject)
	KindDiscoverIncludedServices = correlator.NewKind("discover-included-services", correlator.Reject)
	KindDiscoverCharacteristics  = correlator.NewKind("discover-characteristics", correlator.Reject)
	KindDiscoverDescriptors      = correlator.NewKind("discover-descriptors", correlator.Reject)
	KindRead                     = correlator.NewKind("read", correlator.Reject)
	KindWrite                    = correlator.NewKind("write", correlator.Reject)
	KindWriteDescriptor          = correlator.NewKind("write-descriptor", correlator.Reject)
	KindSetNotify                = correlator.NewKind("set-notify", correlator.Reject)
	KindReadRSSI                 = correlator.NewKind("read-rssi", correlator.Reject)

	KindAddService       = correlator.NewKind("add-service", correlator.Reject)
	KindStartAdvertising = correlator.NewKind("start-advertising", correlator.Supersede)
)

// call registers key, issues cmd and blocks for the correlated result.
// A command rejected synchronously abandons the slot.
func call[T any](ctx context.Context, slots *correlator.Correlator, key correlator.Key, cmd func() error) (T, error) {
	var zero T

	w, err := slots.Register(key)
	if err != nil {
		return zero, err
	}
	if err := cmd(); err != nil {
		w.Abandon()
		return zero, device.NewHardwareError(key.Kind.Name(), key.ID, err)
	}

	v, err := w.Wait(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", key, v)
	}
	return t, nil
}

// resolve feeds a callback outcome into slots, wrapping collaborator errors.
func resolve(slots *correlator.Correlator, key correlator.Key, value any, err error) bool {
	if err != nil {
		return slots.Resolve(key, nil, device.NewHardwareError(key.Kind.Name(), key.ID, err))
	}
	return slots.Resolve(key, value, nil)
}
