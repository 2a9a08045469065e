/*
Package session runs the connection side of the process-control protocol.

A Server accepts connections and runs each one as an independent session on its own goroutine, returning to Accept immediately. A session reads one command message at a time, hands it to the Interpreter, writes the reply back as a single message, and ends when the interpreter asks to close (EXIT), when the peer closes, or on any read or write error. The connection is closed exactly once, whichever way the session ends.

Messages are framed by a Codec. Two framings are provided for TCP:

  - chunk: every Read of up to ReadLimit bytes is one command and every reply is one Write, unterminated. This is what existing clients speak, and it has the obvious weakness that a command split across reads, or two commands coalesced into one read, is misinterpreted.
  - line: commands are newline-terminated and read through a buffer of ReadLimit bytes; a longer line ends the session. Replies get a trailing newline.

Sessions are unbounded by default. MaxSessions caps concurrent sessions by refusing (closing) connections over the limit, and IdleTimeout bounds how long a session may wait on a silent or slow client.
*/
package session
