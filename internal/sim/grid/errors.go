package grid

import "errors"

var (
	ErrClosed           = errors.New("grid closed")
	ErrUnknownAgent     = errors.New("unknown agent")
	ErrOutOfBounds      = errors.New("tile out of bounds")
	ErrBlocked          = errors.New("tile blocked")
	ErrTileOccupied     = errors.New("tile occupied")
	ErrMoveInFlight     = errors.New("move in flight")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrNoSpawnTile      = errors.New("no free tile to spawn on")
)
