package command

import "strings"

// Verb selects what a Command does.
type Verb string

const (
	VerbList    Verb = "LIST"
	VerbStart   Verb = "START"
	VerbStop    Verb = "STOP"
	VerbMonitor Verb = "MONITOR"
	VerbExit    Verb = "EXIT"
	// VerbUnknown is any first word that is not one of the above.
	VerbUnknown Verb = ""
)

var knownVerbs = map[Verb]struct{}{
	VerbList:    {},
	VerbStart:   {},
	VerbStop:    {},
	VerbMonitor: {},
	VerbExit:    {},
}

// Command is one parsed line of client input.
type Command struct {
	Verb Verb
	// Args are the words after the verb.
	Args []string
	// Raw is the input line, kept for unknown commands.
	Raw string
}

// CommandLine is the START argument: the remaining words joined by single spaces.
func (c Command) CommandLine() string {
	return strings.Join(c.Args, " ")
}

// Fixed reply texts.
const (
	ReplyGoodbye      = "Goodbye!"
	ReplyUnknown      = "Unknown command. Available: LIST, START, STOP, MONITOR, EXIT"
	ReplyUsageStart   = "Usage: START <command>"
	ReplyUsageStop    = "Usage: STOP <pid>"
	ReplyUsageMonitor = "Usage: MONITOR <pid>"
)
