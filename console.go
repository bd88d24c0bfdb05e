package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
)

// Console is the interactive command line running next to the key input:
// theme prompts, scale overrides and chord mode live here.
type Console struct {
	session  *Session
	keyboard *Keyboard
	designer ThemeDesigner

	quit func()
	done bool
}

func NewConsole(s *Session, k *Keyboard, d ThemeDesigner, quit func()) *Console {
	return &Console{
		session:  s,
		keyboard: k,
		designer: d,
		quit:     quit,
	}
}

var consoleSuggestions = []prompt.Suggest{
	{Text: "/theme", Description: "generate and share a theme from a prompt"},
	{Text: "/scale", Description: "override the room scale"},
	{Text: "/chord", Description: "set chord mode: single, fifth, triad, seventh"},
	{Text: "/users", Description: "list participants"},
	{Text: "/quit", Description: "leave the room"},
}

func (c *Console) Run() {
	completer := func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(consoleSuggestions, d.GetWordBeforeCursor(), true)
	}

	for !c.done {
		t := prompt.Input("> ", completer)
		if err := c.ProcessCmd(t); err != nil {
			fmt.Println("ERROR: ", err)
		}
	}
}

func (c *Console) ProcessCmd(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "/theme":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /theme <prompt text>")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		t := generateTheme(ctx, c.designer, strings.Join(fields[1:], " "), time.Now().UnixNano())
		c.session.PublishTheme(t)
		fmt.Printf("theme is now %q (%s)\n", t.Name, t.Mood)
		return nil

	case "/scale":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /scale <name>")
		}
		name := fields[1]
		if !knownScale(name) {
			return fmt.Errorf("unknown scale %q", name)
		}
		c.session.PublishScale(name)
		fmt.Println("scale override:", name)
		return nil

	case "/chord":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /chord <mode>")
		}
		if !c.keyboard.SetChordMode(ChordMode(fields[1])) {
			return fmt.Errorf("unknown chord mode %q", fields[1])
		}
		fmt.Println("chord mode:", fields[1])
		return nil

	case "/users":
		for _, u := range c.session.Users() {
			fmt.Printf("%s\tnotes=%v effects=%v\n", u.Name, u.ActiveNotes, u.ActiveEffects)
		}
		return nil

	case "/quit":
		c.done = true
		if c.quit != nil {
			c.quit()
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}
