package game

import "errors"

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrPlayerNotFound = errors.New("player not found")
	ErrInvalidState   = errors.New("invalid state transition")
	ErrNotConnected   = errors.New("game connection is not connected to host")
	ErrNotHost        = errors.New("only the host may do that")
	ErrAborted        = errors.New("game connection aborted")
	ErrUnknownOption  = errors.New("unknown player option")
)
