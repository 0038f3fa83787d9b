package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tatianab/storyloom/internal/story"
)

// defaultTickHours is how far "tick" advances the clock without an argument.
const defaultTickHours = 0.5

const helpText = "Commands: tick [hours], pause/resume/complete/abandon <thread>, " +
	"arrive/leave <name>, move <place>, flag <name> [value], save, quit"

type command struct {
	verb  string
	arg   string
	value string
	hours float64
}

// parseCommand reads one line typed at the prompt. A leading slash is
// accepted so "/quit" works as it always has.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	c := command{verb: strings.ToLower(fields[0])}
	args := fields[1:]

	switch c.verb {
	case "tick", "t":
		c.verb = "tick"
		c.hours = defaultTickHours
		if len(args) > 1 {
			return command{}, fmt.Errorf("usage: tick [hours]")
		}
		if len(args) == 1 {
			h, err := strconv.ParseFloat(args[0], 64)
			if err != nil || h <= 0 {
				return command{}, fmt.Errorf("tick needs a positive number of hours, got %q", args[0])
			}
			c.hours = h
		}
	case "pause", "resume", "complete", "abandon", "arrive", "leave":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: %s <name>", c.verb)
		}
		c.arg = args[0]
	case "move":
		if len(args) == 0 {
			return command{}, fmt.Errorf("usage: move <place>")
		}
		c.arg = strings.Join(args, "_")
	case "flag":
		if len(args) == 0 || len(args) > 2 {
			return command{}, fmt.Errorf("usage: flag <name> [value]")
		}
		c.arg, c.value = args[0], "true"
		if len(args) == 2 {
			c.value = args[1]
		}
	case "save", "help":
		if len(args) != 0 {
			return command{}, fmt.Errorf("%s takes no arguments", c.verb)
		}
	case "quit", "exit", "q":
		c.verb = "quit"
	default:
		return command{}, fmt.Errorf("unknown command %q", fields[0])
	}
	return c, nil
}

// resolveThread finds the thread whose id is id or starts with it.
func resolveThread(all []*story.Thread, id string) (string, error) {
	var matches []string
	for _, t := range all {
		if t.ID == id {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, id) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no thread %q", id)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q matches %d threads", id, len(matches))
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
