package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/exclusivedisjunction/regisd/internal/config"
	"github.com/exclusivedisjunction/regisd/internal/wire"
)

// runREPL drives the stdin-line command loop, grounded on the original
// console's prompt/prompt_command loop (regisc-cli/src/main.rs): one
// line in, one parsed command, one request/response round trip, one
// printed result. Unlike the original, every subcommand here actually
// reaches regisd — there is no unimplemented branch.
func runREPL(c *client, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Regis Console")
	fmt.Fprintln(out, "Type a command, or type quit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return nil
		case "clear":
			fmt.Fprint(out, "\x1B[2J\x1b[1;1H")
		case "poll":
			dispatchPoll(c, out)
		case "config":
			dispatchConfig(c, out, fields[1:])
		case "auth":
			dispatchAuth(c, out, fields[1:])
		default:
			fmt.Fprintf(out, "unrecognized command %q. Known commands: quit, clear, poll, config, auth\n", fields[0])
		}
	}
}

func dispatchPoll(c *client, out io.Writer) {
	resp, err := c.roundTrip(wire.NewPollRequest())
	if err != nil {
		fmt.Fprintln(out, failStyle.Render(err.Error()))
		return
	}
	if resp.Ok {
		fmt.Fprintln(out, okStyle.Render("regisd is active."))
	} else {
		fmt.Fprintln(out, warnStyle.Render("regisd responded, but reported not-ok."))
	}
}

func dispatchConfig(c *client, out io.Writer, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(out, "usage: config {get|reload|update}")
		return
	}
	switch args[0] {
	case "get":
		resp, err := c.roundTrip(wire.NewConfigGetRequest())
		if err != nil {
			fmt.Fprintln(out, failStyle.Render(err.Error()))
			return
		}
		if resp.Config == nil {
			fmt.Fprintln(out, warnStyle.Render("the daemon's configuration is not loaded."))
			return
		}
		printConfig(out, *resp.Config)
	case "reload":
		resp, err := c.roundTrip(wire.NewConfigReloadRequest())
		if err != nil {
			fmt.Fprintln(out, failStyle.Render(err.Error()))
			return
		}
		if resp.Ok {
			fmt.Fprintln(out, okStyle.Render("regisd has reloaded its configuration file."))
		} else {
			fmt.Fprintln(out, warnStyle.Render("regisd could not reload its configuration."))
		}
	case "update":
		runConfigUpdate(c, out)
	default:
		fmt.Fprintf(out, "unrecognized config subcommand %q. Known: get, reload, update\n", args[0])
	}
}

func printConfig(out io.Writer, cfg config.Config) {
	fmt.Fprintf(out, "max_console:      %d\n", cfg.MaxConsole)
	fmt.Fprintf(out, "max_hosts:        %d\n", cfg.MaxHosts)
	fmt.Fprintf(out, "hosts_port:       %d\n", cfg.HostsPort)
	fmt.Fprintf(out, "broadcasts_port:  %d\n", cfg.BroadcastsPort)
	fmt.Fprintf(out, "metric_freq_secs: %d\n", cfg.MetricFreqSecs)
}

// runConfigUpdate fetches the current configuration, offers an
// interactive form pre-filled with its values (huh, per
// cmd/bd/create_form.go's form idiom), and sends the edited result as
// Config(Set(...)) on confirmation.
func runConfigUpdate(c *client, out io.Writer) {
	resp, err := c.roundTrip(wire.NewConfigGetRequest())
	if err != nil {
		fmt.Fprintln(out, failStyle.Render(err.Error()))
		return
	}
	curr := config.Default()
	if resp.Config != nil {
		curr = *resp.Config
	}

	maxConsole := strconv.Itoa(int(curr.MaxConsole))
	maxHosts := strconv.Itoa(int(curr.MaxHosts))
	hostsPort := strconv.Itoa(int(curr.HostsPort))
	broadcastsPort := strconv.Itoa(int(curr.BroadcastsPort))
	metricFreq := strconv.Itoa(int(curr.MetricFreqSecs))

	uintValidator := func(s string) error {
		if _, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64); err != nil {
			return fmt.Errorf("must be a non-negative integer")
		}
		return nil
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("max_console").Value(&maxConsole).Validate(uintValidator),
			huh.NewInput().Title("max_hosts").Value(&maxHosts).Validate(uintValidator),
			huh.NewInput().Title("hosts_port").Value(&hostsPort).Validate(uintValidator),
			huh.NewInput().Title("broadcasts_port").Value(&broadcastsPort).Validate(uintValidator),
			huh.NewInput().Title("metric_freq_secs").Value(&metricFreq).Validate(uintValidator),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			fmt.Fprintln(out, mutedStyle.Render("update cancelled."))
			return
		}
		fmt.Fprintln(out, failStyle.Render(err.Error()))
		return
	}

	next := curr
	next.MaxConsole = parseUint8(maxConsole)
	next.MaxHosts = parseUint8(maxHosts)
	next.HostsPort = parseUint16(hostsPort)
	next.BroadcastsPort = parseUint16(broadcastsPort)
	next.MetricFreqSecs = parseUint64(metricFreq)

	if err := next.Validate(); err != nil {
		fmt.Fprintln(out, failStyle.Render(err.Error()))
		return
	}

	resp, err = c.roundTrip(wire.NewConfigSetRequest(next))
	if err != nil {
		fmt.Fprintln(out, failStyle.Render(err.Error()))
		return
	}
	if resp.Ok {
		fmt.Fprintln(out, okStyle.Render("the configuration has been updated."))
	} else {
		fmt.Fprintln(out, warnStyle.Render("regisd rejected the updated configuration."))
	}
}

func parseUint8(s string) uint8   { v, _ := strconv.ParseUint(strings.TrimSpace(s), 10, 8); return uint8(v) }
func parseUint16(s string) uint16 { v, _ := strconv.ParseUint(strings.TrimSpace(s), 10, 16); return uint16(v) }
func parseUint64(s string) uint64 { v, _ := strconv.ParseUint(strings.TrimSpace(s), 10, 64); return v }

func dispatchAuth(c *client, out io.Writer, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(out, "usage: auth {pending|users|history <id>|approve <id> <name>|deny <id>|revoke <id>}")
		return
	}
	switch args[0] {
	case "pending":
		resp, err := c.roundTrip(wire.NewAuthPendingRequest())
		if err != nil {
			fmt.Fprintln(out, failStyle.Render(err.Error()))
			return
		}
		printPendingTable(resp.Pending)
	case "users":
		resp, err := c.roundTrip(wire.NewAuthAllUsersRequest())
		if err != nil {
			fmt.Fprintln(out, failStyle.Render(err.Error()))
			return
		}
		printAllUsersTable(resp.Users)
	case "history":
		id, ok := parseArgID(out, args, 1)
		if !ok {
			return
		}
		resp, err := c.roundTrip(wire.NewAuthUserHistoryRequest(id))
		if err != nil {
			fmt.Fprintln(out, failStyle.Render(err.Error()))
			return
		}
		printUserHistoryTable(resp.UserDetail)
	case "approve":
		if len(args) < 3 {
			fmt.Fprintln(out, "usage: auth approve <id> <name>")
			return
		}
		id, ok := parseArgID(out, args, 1)
		if !ok {
			return
		}
		name := strings.Join(args[2:], " ")
		if !confirmAction(out, fmt.Sprintf("Approve pending user %d as %q?", id, name)) {
			return
		}
		resp, err := c.roundTrip(wire.NewAuthApproveRequest(id, name))
		if err != nil {
			fmt.Fprintln(out, failStyle.Render(err.Error()))
			return
		}
		printApproveResult(name, resp.NewUser)
	case "deny":
		id, ok := parseArgID(out, args, 1)
		if !ok {
			return
		}
		if !confirmAction(out, fmt.Sprintf("Deny pending user %d?", id)) {
			return
		}
		resp, err := c.roundTrip(wire.NewAuthDenyRequest(id))
		if err != nil {
			fmt.Fprintln(out, failStyle.Render(err.Error()))
			return
		}
		printDenyResult(id, resp.Ok)
	case "revoke":
		id, ok := parseArgID(out, args, 1)
		if !ok {
			return
		}
		if !confirmAction(out, fmt.Sprintf("Revoke user %d? This cannot be undone.", id)) {
			return
		}
		resp, err := c.roundTrip(wire.NewAuthRevokeRequest(id))
		if err != nil {
			fmt.Fprintln(out, failStyle.Render(err.Error()))
			return
		}
		printRevokeResult(id, resp.Ok)
	default:
		fmt.Fprintf(out, "unrecognized auth subcommand %q\n", args[0])
	}
}

func parseArgID(out io.Writer, args []string, index int) (uint64, bool) {
	if index >= len(args) {
		fmt.Fprintln(out, "missing <id> argument")
		return 0, false
	}
	id, err := strconv.ParseUint(args[index], 10, 64)
	if err != nil {
		fmt.Fprintf(out, "invalid id %q: %v\n", args[index], err)
		return 0, false
	}
	return id, true
}

// confirmAction gates the three destructive Auth operations behind an
// interactive yes/no (huh), since regisd performs them unconditionally
// on request and the console is the only review step an operator gets.
func confirmAction(out io.Writer, prompt string) bool {
	confirmed := false
	err := huh.NewConfirm().
		Title(prompt).
		Value(&confirmed).
		Run()
	if err != nil {
		fmt.Fprintln(out, mutedStyle.Render("cancelled."))
		return false
	}
	return confirmed
}
