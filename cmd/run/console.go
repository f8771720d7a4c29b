package run

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tphakala/voicechanger/internal/controller"
	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/mqtt"
)

// errQuit ends the run command when the user types quit
var errQuit = errors.NewStd("quit requested")

// consoleTimeout bounds a single console command
const consoleTimeout = 15 * time.Second

const consoleHelp = `commands:
  start | on          start the voice changer
  stop | off          stop the voice changer
  pitch <v>           set the pitch ratio, 1.0 is the natural voice
  pause               stop without waiting, as when the app is backgrounded
  status              print the current state
  quit | exit         shut down
`

// consoleController is the controller surface used by the console
type consoleController interface {
	State() controller.State
	PitchRange() (minPitch, maxPitch float32)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetPitch(ctx context.Context, v float32) (float32, error)
	OnPause()
}

// console reads line commands and prints their outcome
type console struct {
	in   io.Reader
	out  io.Writer
	ctrl consoleController
}

func newConsole(in io.Reader, out io.Writer, ctrl consoleController) *console {
	return &console{in: in, out: out, ctrl: ctrl}
}

// Run processes commands until ctx is canceled, the input ends or the user
// quits, in which case errQuit is returned. The reader goroutine exits once
// the input is closed.
func (c *console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printf("voice changer console, type help for commands\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.handle(ctx, strings.TrimSpace(line)); err != nil {
				return err
			}
		}
	}
}

func (c *console) handle(ctx context.Context, line string) error {
	switch strings.ToLower(line) {
	case "":
		return nil
	case "quit", "exit":
		return errQuit
	case "help", "?":
		c.printf("%s", consoleHelp)
		return nil
	case "status":
		c.printStatus()
		return nil
	case "pause":
		c.ctrl.OnPause()
		c.printf("pause requested\n")
		return nil
	}

	cmd, err := mqtt.ParseCommand([]byte(line))
	if err != nil {
		c.printf("unknown command %q, type help for commands\n", line)
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, consoleTimeout)
	defer cancel()

	switch cmd.Name {
	case mqtt.CommandStart:
		if err := c.ctrl.Start(opCtx); err != nil {
			c.printf("start failed: %v\n", err)
			return nil
		}
		c.printf("started, pitch %.2f\n", c.ctrl.State().Pitch)
	case mqtt.CommandStop:
		if err := c.ctrl.Stop(opCtx); err != nil {
			c.printf("stop failed: %v\n", err)
			return nil
		}
		c.printf("stopped\n")
	case mqtt.CommandPitch:
		applied, err := c.ctrl.SetPitch(opCtx, cmd.Pitch)
		if err != nil {
			c.printf("pitch failed: %v\n", err)
			return nil
		}
		if !c.ctrl.State().Running {
			c.printf("not running, pitch %.2f ignored\n", applied)
			return nil
		}
		c.printf("pitch %.2f\n", applied)
	}
	return nil
}

func (c *console) printStatus() {
	s := c.ctrl.State()
	minPitch, maxPitch := c.ctrl.PitchRange()
	c.printf("permission=%t running=%t pitch=%.2f range=[%.2f, %.2f]", s.Permission, s.Running, s.Pitch, minPitch, maxPitch)
	if s.LastError != "" {
		c.printf(" last_error=%q", s.LastError)
	}
	c.printf("\n")
}

func (c *console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}
