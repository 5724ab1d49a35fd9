package cmd

import "errors"

// errSilent signals a failure already reported to the user; the root
// command suppresses its message and only sets the exit code.
var errSilent = errors.New("")
