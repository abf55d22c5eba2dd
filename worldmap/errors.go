package worldmap

import "errors"

// ErrCorrupted marks stored or received map data that failed to decode.
// Callers clear the affected collection instead of keeping partial state.
var ErrCorrupted = errors.New("worldmap: map data is corrupted")
