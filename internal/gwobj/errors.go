package gwobj

import (
	"errors"
	"fmt"

	"cloudpico-sensorbridge/internal/registry"
)

var (
	ErrNoMemory        = fmt.Errorf("gwobj: no free object: %w", registry.ErrCapacityExhausted)
	ErrBlocked         = fmt.Errorf("gwobj: address blocked: %w", registry.ErrBlockedIdentity)
	ErrNotFound        = errors.New("gwobj: object not found")
	ErrInstanceCreated = errors.New("gwobj: upstream instance already created")
	ErrInvalidName     = errors.New("gwobj: invalid endpoint name")
)
