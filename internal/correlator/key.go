package correlator

import "fmt"

// Policy decides what happens when an operation is registered while a slot
// with the same key is still pending.
type Policy int

const (
	// Reject fails the new registration with device.ErrDuplicateKey.
	Reject Policy = iota
	// Supersede fails the pending slot with device.ErrSuperseded and installs
	// the new one.
	Supersede
)

func (p Policy) String() string {
	if p == Supersede {
		return "supersede"
	}
	return "reject"
}

// Kind names an operation class. Its policy is fixed at construction.
type Kind struct {
	name   string
	policy Policy
}

// NewKind creates an operation kind with a fixed duplicate-registration policy.
func NewKind(name string, policy Policy) Kind {
	return Kind{name: name, policy: policy}
}

func (k Kind) Name() string     { return k.name }
func (k Kind) Policy() Policy   { return k.policy }
func (k Kind) String() string   { return k.name }
func (k Kind) Key(id string) Key { return Key{Kind: k, ID: id} }

// Key addresses one pending slot: an operation kind and its target entity.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Kind.name, k.ID)
}

// DroppedCallback is the diagnostic logged when a resolution arrives for a
// key with no pending slot. It is never returned to a caller.
type DroppedCallback struct {
	Key Key
	Err error
}

func (d *DroppedCallback) Error() string {
	if d.Err != nil {
		return fmt.Sprintf("dropped callback for %s (carried error: %v)", d.Key, d.Err)
	}
	return fmt.Sprintf("dropped callback for %s", d.Key)
}
