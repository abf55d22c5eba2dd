package service

import (
	"errors"

	"cartograph/api/lang"
)

// Status of a map engine. Only StatusEnabled exchanges map data.
type Status int

const (
	StatusEnabled Status = iota
	StatusDisabled
	StatusCorruptedData
)

// ErrNotCorrupted is returned by restore commands when there is nothing to restore.
var ErrNotCorrupted = errors.New("service: map data is not corrupted")

func (s Status) String() string {
	switch s {
	case StatusEnabled:
		return "enabled"
	case StatusDisabled:
		return "disabled"
	case StatusCorruptedData:
		return "corrupted"
	}
	return "unknown"
}

// errorKey is the message shown when an action is refused in this status.
func (s Status) errorKey(client bool) string {
	switch s {
	case StatusDisabled:
		return lang.ErrorModDisabled
	case StatusCorruptedData:
		if client {
			return lang.ErrorDataCorruptedClient
		}
		return lang.ErrorDataCorruptedServer
	}
	return ""
}
