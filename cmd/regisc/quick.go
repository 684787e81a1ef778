package main

import (
	"fmt"

	"github.com/exclusivedisjunction/regisd/internal/wire"
)

// quickCommand is the -q/--quick argument's value set (spec.md §6): a
// single request sent over one connection, with no REPL. The original
// console (regisc-cli/src/main.rs) declared this enum but its dispatch
// was an unfinished panic; spec.md documents it as a real CLI surface,
// so this is a completion rather than a port.
type quickCommand string

const (
	quickShutdown quickCommand = "Shutdown"
	quickConfig   quickCommand = "Config"
	quickPoll     quickCommand = "Poll"
)

func parseQuickCommand(s string) (quickCommand, error) {
	switch quickCommand(s) {
	case quickShutdown, quickConfig, quickPoll:
		return quickCommand(s), nil
	default:
		return "", fmt.Errorf("unrecognized --quick value %q (expected Shutdown, Config, or Poll)", s)
	}
}

// runQuick sends the single request the command names over the already
// dialed client c, and prints a one-line result.
func runQuick(c *client, cmd quickCommand) error {
	var req wire.ConsoleRequest
	switch cmd {
	case quickShutdown:
		req = wire.NewShutdownRequest()
	case quickConfig:
		req = wire.NewConfigReloadRequest()
	case quickPoll:
		req = wire.NewPollRequest()
	}

	resp, err := c.roundTrip(req)
	if err != nil {
		return err
	}

	switch cmd {
	case quickShutdown:
		if resp.Ok {
			fmt.Println(okStyle.Render("regisd is shutting down."))
		} else {
			fmt.Println(warnStyle.Render("regisd did not acknowledge the shutdown request."))
		}
	case quickConfig:
		if resp.Ok {
			fmt.Println(okStyle.Render("regisd has reloaded its configuration."))
		} else {
			fmt.Println(warnStyle.Render("regisd could not reload its configuration."))
		}
	case quickPoll:
		if resp.Ok {
			fmt.Println(okStyle.Render("regisd is active."))
		} else {
			fmt.Println(warnStyle.Render("regisd responded, but reported not-ok."))
		}
	}
	return nil
}
