package applink

import (
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"
)

// ExecPlayer plays files by running an external command with the file path
// appended, e.g. "aplay -q". Only one playback runs at a time.
type ExecPlayer struct {
	name string
	args []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewExecPlayer splits command on whitespace
func NewExecPlayer(command string) (*ExecPlayer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty player command")
	}
	return &ExecPlayer{name: fields[0], args: fields[1:]}, nil
}

// Play stops any current playback and starts path without waiting for it
func (p *ExecPlayer) Play(path string) error {
	p.Stop()

	cmd := exec.Command(p.name, append(append([]string{}, p.args...), path)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", p.name, err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		if p.cmd == cmd {
			p.cmd = nil
		}
		p.mu.Unlock()
		if err != nil {
			log.Printf("[Player] %s exited: %v", p.name, err)
		}
	}()
	return nil
}

// Stop kills the current playback, if any
func (p *ExecPlayer) Stop() {
	p.mu.Lock()
	cmd := p.cmd
	p.cmd = nil
	p.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// Playing reports whether a playback process is running
func (p *ExecPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}
