package command

import "strings"

// Parse splits a line into a Command.
// ok is false when the line has no words, in which case the line must not be dispatched.
func Parse(line string) (cmd Command, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, false
	}

	verb := Verb(strings.ToUpper(fields[0]))
	if _, known := knownVerbs[verb]; !known {
		verb = VerbUnknown
	}
	return Command{Verb: verb, Args: fields[1:], Raw: line}, true
}
