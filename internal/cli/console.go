package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/iskrim46/ogurec/internal/api"
	"github.com/iskrim46/ogurec/internal/relay"
)

const consoleKickReason = "kicked by relay admin"

// Console is the interactive command loop attached to a running relay.
type Console struct {
	sessions api.SessionSource
	out      io.Writer
	quit     func()
}

// NewConsole creates a console over sessions. quit is called by the quit
// command.
func NewConsole(sessions api.SessionSource, out io.Writer, quit func()) *Console {
	return &Console{sessions: sessions, out: out, quit: quit}
}

// Run reads commands from in until ctx is cancelled, in is exhausted, or
// the quit command is given.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(c.out, "\nogurec console ready. Type 'help' for available commands.")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			if done := c.Execute(strings.ToLower(parts[0]), parts[1:]); done {
				return nil
			}
		}
	}
}

// Execute runs one command and reports whether the console should stop.
func (c *Console) Execute(cmd string, args []string) bool {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus(args)
	case "kick":
		if len(args) == 0 {
			fmt.Fprintln(c.out, "Usage: kick <session> [reason]")
			return false
		}
		reason := consoleKickReason
		if len(args) > 1 {
			reason = strings.Join(args[1:], " ")
		}
		if err := c.sessions.Kick(args[0], reason); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(c.out, "Kicked %s\n", args[0])
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down ogurec...")
		if c.quit != nil {
			c.quit()
		}
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
  status [session]        Show all sessions or one session
  kick <session> [reason] Disconnect a client with a reason
  quit                    Shut down the relay
  help                    Show this help message`)
}

func (c *Console) printStatus(args []string) {
	if len(args) > 0 {
		info, err := c.sessions.Session(args[0])
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		c.printSessionDetail(info)
		return
	}

	sessions := c.sessions.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(c.out, "No active sessions")
		return
	}

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Session", "Client", "Slot", "Forwarded", "Intercepted", "Uptime"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, s := range sessions {
		tw.Append([]string{
			s.ID,
			s.ClientAddr,
			slotString(s.Slot),
			fmt.Sprintf("%d", s.Relay.Forwarded),
			fmt.Sprintf("%d", s.Relay.Intercepted),
			time.Since(s.StartedAt).Truncate(time.Second).String(),
		})
	}
	tw.Render()
}

func (c *Console) printSessionDetail(s relay.SessionInfo) {
	fmt.Fprintf(c.out, "Session:     %s\n", s.ID)
	fmt.Fprintf(c.out, "Client:      %s\n", s.ClientAddr)
	fmt.Fprintf(c.out, "Upstream:    %s\n", s.UpstreamAddr)
	fmt.Fprintf(c.out, "Slot:        %s\n", slotString(s.Slot))
	fmt.Fprintf(c.out, "Started:     %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(c.out, "Forwarded:   %d\n", s.Relay.Forwarded)
	fmt.Fprintf(c.out, "Intercepted: %d\n", s.Relay.Intercepted)
	fmt.Fprintf(c.out, "Client I/O:  %d frames in, %d out\n", s.Client.FramesIn, s.Client.FramesOut)
	fmt.Fprintf(c.out, "Server I/O:  %d frames in, %d out\n", s.Upstream.FramesIn, s.Upstream.FramesOut)
}

func slotString(slot *uint8) string {
	if slot == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *slot)
}
