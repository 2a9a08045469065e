/*
Package command parses and executes the text commands of the process-control protocol.

A command is one line of client input. Its first whitespace-separated word selects the verb, case-insensitively, and the remaining words are its arguments:

	LIST               list up to 20 host processes as an indented JSON array of {"pid", "name"}
	START <cmd...>     start the rest of the line as a detached host command
	STOP <pid>         forcibly terminate a process
	MONITOR <pid>      report whether a process is running
	EXIT               say goodbye and end the session

Anything else gets a fixed "unknown command" reply. A line with no words is a no-op and gets no reply at all.

The Interpreter never returns an error: host failures and malformed arguments are turned into reply text, so a bad command never ends a session.
*/
package command
