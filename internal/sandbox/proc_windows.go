//go:build windows

package sandbox

import "os/exec"

// killGroupOnCancel keeps the default kill on Windows; WaitDelay still
// releases pipes held by surviving children.
func killGroupOnCancel(*exec.Cmd) {}
