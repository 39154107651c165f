package link

import "github.com/pkg/errors"

var (
	ErrBusClosed        = errors.New("link: bus closed")
	ErrDuplicateAdapter = errors.New("link: adapter address already attached")
	ErrUnknownAdapter   = errors.New("link: unknown adapter")
	ErrNoLink           = errors.New("link: no link between adapters")
	ErrForeignHandle    = errors.New("link: handle does not belong to this bus")
)
