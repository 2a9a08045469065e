/*
Package process wraps the host facilities the agent drives: enumerating processes, starting a command line as a new detached process, killing a process by PID, and probing whether a PID is alive.

Nothing here keeps state between calls (apart from the optional AllowList), so a single Lister and Controller are shared by every session.

Start executes arbitrary host commands verbatim through the host shell. There is no escaping or validation at this layer. If that is too much, configure an AllowList, which restricts START to a fixed set of program names.

The host-specific parts are selected at build time:

  - unix: "ps -e -o pid,comm" for listing, "/bin/sh -c" for starting, SIGKILL for stopping, signal 0 for liveness
  - windows: "tasklist /FO CSV /NH" for listing, "cmd /C" for starting, TerminateProcess for stopping
*/
package process
