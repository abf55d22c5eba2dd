package command

import (
	"cartograph/api/lang"
	"cartograph/api/service"
)

// ServerRestorer is the server engine side of /mapper restore.
type ServerRestorer interface {
	HandleRestoreCommand(langCode string) (string, error)
}

// ClientRestorer is the client engine side of /mapper restore.
type ClientRestorer interface {
	HandleRestoreCommand() (string, error)
}

var (
	_ ServerRestorer = (*service.MapServer)(nil)
	_ ClientRestorer = (*service.MapClient)(nil)
)

// NewServerMapper registers /mapper restore for operators.
func NewServerMapper(server ServerRestorer) *Dispatcher {
	d := NewDispatcher("mapper")
	d.Register("restore", PrivilegeRoot, lang.RestoreDescription, func(caller Caller, _ []string) (string, error) {
		return server.HandleRestoreCommand(caller.Language)
	})
	return d
}

// NewClientMapper registers /mapper restore for the local player.
func NewClientMapper(client ClientRestorer) *Dispatcher {
	d := NewDispatcher("mapper")
	d.Register("restore", "", lang.RestoreDescription, func(Caller, []string) (string, error) {
		return client.HandleRestoreCommand()
	})
	return d
}
