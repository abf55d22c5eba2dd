// Package command 解析并执行聊天命令（/mapper ...）
package command

import (
	"errors"
	"slices"
	"strings"

	"cartograph/api/lang"
	"cartograph/api/log"
)

// PrivilegeRoot is required for server side map administration.
const PrivilegeRoot = "root"

var (
	ErrUnknownCommand = errors.New("command: unknown command")
	ErrNoPrivilege    = errors.New("command: missing privilege")
)

// Caller is whoever typed the command.
type Caller struct {
	UID        string
	Language   string
	Privileges []string
}

func (c Caller) Has(privilege string) bool {
	return slices.Contains(c.Privileges, privilege)
}

// Handler runs one subcommand and returns the localized reply.
type Handler func(caller Caller, args []string) (string, error)

type entry struct {
	privilege   string
	description string
	handler     Handler
}

// Dispatcher routes "/<name> <sub> args..." to registered handlers.
type Dispatcher struct {
	name string
	subs map[string]entry
}

func NewDispatcher(name string) *Dispatcher {
	return &Dispatcher{name: name, subs: make(map[string]entry)}
}

// Register adds a subcommand. An empty privilege lets everyone run it.
func (d *Dispatcher) Register(sub, privilege, descriptionKey string, h Handler) {
	d.subs[sub] = entry{privilege: privilege, description: descriptionKey, handler: h}
}

// Execute runs line, with or without the leading slash.
func (d *Dispatcher) Execute(caller Caller, line string) (string, error) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) < 2 || fields[0] != d.name {
		return lang.Get(caller.Language, lang.ErrorUnknownCommand), ErrUnknownCommand
	}
	e, ok := d.subs[fields[1]]
	if !ok {
		return lang.Get(caller.Language, lang.ErrorUnknownCommand), ErrUnknownCommand
	}
	if e.privilege != "" && !caller.Has(e.privilege) {
		log.WithField("uid", caller.UID).Warnf("denied /%s %s", d.name, fields[1])
		return lang.Get(caller.Language, lang.ErrorNoPrivilege), ErrNoPrivilege
	}
	return e.handler(caller, fields[2:])
}

// Help lists the subcommands with their localized descriptions.
func (d *Dispatcher) Help(languageCode string) []string {
	subs := make([]string, 0, len(d.subs))
	for sub := range d.subs {
		subs = append(subs, sub)
	}
	slices.Sort(subs)
	out := make([]string, 0, len(subs))
	for _, sub := range subs {
		out = append(out, "/"+d.name+" "+sub+" - "+lang.Get(languageCode, d.subs[sub].description))
	}
	return out
}
