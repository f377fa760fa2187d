package server

// Command is a subscriber request that drives the session.
type Command int

const (
	CommandStart Command = iota + 1
	CommandStop
)

func ParseCommand(kind string) (Command, bool) {
	switch kind {
	case "startSendingGazeData":
		return CommandStart, true
	case "stopSendingGazeData":
		return CommandStop, true
	default:
		return 0, false
	}
}

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	default:
		return "unknown"
	}
}
