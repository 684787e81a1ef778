package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/exclusivedisjunction/regisd/internal/wire"
)

// Styles mirror bd-examples/main.go's semantic palette (pass/warn/fail/
// muted/accent), reused here for the console's result lines.
var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})
	headerStyle = lipgloss.NewStyle().Bold(true)
)

func formatTime(epochSecs int64) string {
	return time.Unix(epochSecs, 0).Local().Format("2006-01-02 15:04:05")
}

func printAllUsersTable(users []wire.UserSummary) {
	if len(users) == 0 {
		fmt.Println(mutedStyle.Render("regisd has no users."))
		return
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("| %-7s | %-20s |", "ID", "Nickname")))
	fmt.Printf("| %s | %s |\n", dashes(7), dashes(20))
	for _, u := range users {
		fmt.Printf("| %-7d | %-20s |\n", u.ID, u.Nickname)
	}
}

func printPendingTable(pending []wire.PendingSummary) {
	if len(pending) == 0 {
		fmt.Println(mutedStyle.Render("regisd has no pending users for authentication."))
		return
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("| %-7s | %-25s | %-19s |", "ID", "From IP", "Requested")))
	fmt.Printf("| %s | %s | %s |\n", dashes(7), dashes(25), dashes(19))
	for _, p := range pending {
		fmt.Printf("| %-7d | %-25s | %-19s |\n", p.ID, p.FromIP, formatTime(p.RequestedAt))
	}
}

func printUserHistoryTable(detail *wire.UserDetail) {
	if detail == nil {
		fmt.Println(failStyle.Render("no such user."))
		return
	}
	fmt.Printf("User history for id %d (%q):\n", detail.ID, detail.Nickname)
	fmt.Println(headerStyle.Render(fmt.Sprintf("| %-25s | %-19s |", "From IP", "Time")))
	fmt.Printf("| %s | %s |\n", dashes(25), dashes(19))
	for _, h := range detail.History {
		fmt.Printf("| %-25s | %-19s |\n", h.FromIP, formatTime(h.AtTime))
	}
}

func printApproveResult(name string, user *wire.NewUser) {
	if user == nil {
		fmt.Println(failStyle.Render(fmt.Sprintf("the user %q was not approved.", name)))
		return
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("user %d (%s) was approved.", user.ID, name)))
}

func printDenyResult(id uint64, ok bool) {
	if ok {
		fmt.Println(okStyle.Render(fmt.Sprintf("pending user %d was denied.", id)))
	} else {
		fmt.Println(warnStyle.Render(fmt.Sprintf("pending user %d could not be denied (unknown id?).", id)))
	}
}

func printRevokeResult(id uint64, ok bool) {
	if ok {
		fmt.Println(okStyle.Render(fmt.Sprintf("user %d was revoked.", id)))
	} else {
		fmt.Println(warnStyle.Render(fmt.Sprintf("user %d could not be revoked (unknown id?).", id)))
	}
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}
