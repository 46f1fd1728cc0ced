// Package ipc carries daemon commands over a unix socket, one JSON line per request
// and response.
package ipc

// Commands accepted by the daemon.
const (
	CommandStart      = "start"
	CommandStop       = "stop"
	CommandToggle     = "toggle"
	CommandStatus     = "status"
	CommandInitialize = "initialize"
)

// Commands lists every command in help order.
func Commands() []string {
	return []string{CommandStart, CommandStop, CommandToggle, CommandStatus, CommandInitialize}
}

// KnownCommand reports whether name is a daemon command.
func KnownCommand(name string) bool {
	for _, c := range Commands() {
		if c == name {
			return true
		}
	}
	return false
}

type Request struct {
	Command string `json:"command"`
}

// Response reports the outcome of one command plus a status snapshot of the
// controller taken after it ran.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Backend string `json:"backend,omitempty"`
	Emotion string `json:"emotion,omitempty"`
	TurnID  string `json:"turn_id,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
