//go:build !windows

package main

import (
	"os"
	"syscall"
)

// daemonize re-executes the binary in a new session with no terminal
func daemonize() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}

	procAttr := &os.ProcAttr{
		Env:   append(os.Environ(), daemonChildEnv+"=1"),
		Files: []*os.File{nil, nil, nil},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	}
	proc, err := os.StartProcess(exe, os.Args, procAttr)
	if err != nil {
		return 0, err
	}
	defer proc.Release()

	return proc.Pid, nil
}
