package process

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// ErrHostNotFound is returned when no running process matches
var ErrHostNotFound = errors.New("host process not found")

// Info describes one running process
type Info struct {
	PID        int32
	Name       string
	Cmdline    string
	CreateTime time.Time
}

// Lookup returns information about a running process
func Lookup(pid int32) (*Info, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, errors.Wrapf(ErrHostNotFound, "pid %d", pid)
		}
		return nil, errors.Wrapf(err, "failed to inspect pid %d", pid)
	}
	return describe(p), nil
}

// FindByName returns the most recently started process whose name or
// executable base name equals name, ignoring case.
func FindByName(name string) (*Info, error) {
	if name == "" {
		return nil, errors.New("process name is empty")
	}

	procs, err := process.Processes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list processes")
	}

	var matches []*Info
	for _, p := range procs {
		info := describe(p)
		if matchesName(info, name) {
			matches = append(matches, info)
		}
	}

	if len(matches) == 0 {
		return nil, errors.Wrapf(ErrHostNotFound, "no process named %q", name)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreateTime.After(matches[j].CreateTime)
	})
	return matches[0], nil
}

// Alive reports whether pid is running and not a zombie
func Alive(pid int32) (bool, error) {
	exists, err := process.PidExists(pid)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check pid %d", pid)
	}
	if !exists {
		return false, nil
	}

	p, err := process.NewProcess(pid)
	if err != nil {
		return false, nil
	}

	status, err := p.Status()
	if err != nil {
		// Status is not supported everywhere; existence is enough then.
		return true, nil
	}
	for _, s := range status {
		if s == process.Zombie {
			return false, nil
		}
	}
	return true, nil
}

// Terminate asks pid to exit: SIGTERM on Unix, TerminateProcess on Windows
func Terminate(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return errors.Wrapf(ErrHostNotFound, "pid %d", pid)
	}
	if err := p.Terminate(); err != nil {
		return errors.Wrapf(err, "failed to terminate pid %d", pid)
	}
	return nil
}

// Name returns the process name of pid, or "" when it cannot be read
func Name(pid int32) string {
	p, err := process.NewProcess(pid)
	if err != nil {
		return ""
	}
	name, err := p.Name()
	if err != nil {
		return ""
	}
	return name
}

func describe(p *process.Process) *Info {
	info := &Info{PID: p.Pid}
	if name, err := p.Name(); err == nil {
		info.Name = name
	}
	if cmdline, err := p.Cmdline(); err == nil {
		info.Cmdline = cmdline
	}
	if ms, err := p.CreateTime(); err == nil {
		info.CreateTime = time.UnixMilli(ms)
	}
	return info
}

func matchesName(info *Info, name string) bool {
	if strings.EqualFold(info.Name, name) {
		return true
	}
	// Windows names carry the .exe suffix, and Linux truncates comm to 15 bytes.
	if strings.EqualFold(strings.TrimSuffix(info.Name, ".exe"), name) {
		return true
	}
	if info.Cmdline == "" {
		return false
	}
	exe := strings.Fields(info.Cmdline)[0]
	base := filepath.Base(exe)
	return strings.EqualFold(base, name) || strings.EqualFold(strings.TrimSuffix(base, ".exe"), name)
}
