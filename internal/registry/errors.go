package registry

import (
	"errors"
	"fmt"
)

// ErrPermission is the permission-style failure returned when an address
// cannot be given a slot.
var ErrPermission = errors.New("registry: permission denied")

var (
	// ErrCapacityExhausted means every slot is taken. It is latched until a
	// removal is delivered.
	ErrCapacityExhausted = fmt.Errorf("%w: table full", ErrPermission)

	// ErrBlockedIdentity means the address is administratively disallowed.
	ErrBlockedIdentity = fmt.Errorf("%w: address blocked", ErrPermission)

	// ErrUnresolvedSlot means the address has no slot and creation was not requested.
	ErrUnresolvedSlot = errors.New("registry: address not resolved")

	// ErrUnsupportedKind means the capability is disabled or no conversion exists.
	ErrUnsupportedKind = errors.New("registry: unsupported event kind")

	// ErrStoreWrite means an external create, set or bind call failed.
	ErrStoreWrite = errors.New("registry: store write failed")
)
