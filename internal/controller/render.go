package controller

import (
	"fmt"
	"strings"

	"webterm/internal/simulator"
)

const (
	colorReset = "\x1b[0m"
	colorRed   = "\x1b[31m"
	colorGreen = "\x1b[32m"
	colorBlue  = "\x1b[34m"
	colorCyan  = "\x1b[36m"
	colorAmber = "\x1b[33m"

	eraseChar = "\b \b"

	connectedIndicator    = "\r\n" + colorGreen + "Connected to server" + colorReset + "\r\n"
	lostIndicator         = "\r\n" + colorRed + "Connection lost" + colorReset + "\r\n"
	connectErrorIndicator = "\r\n" + colorRed + "Error connecting to server" + colorReset + "\r\n"
	degradedNotice        = "\r\n" + colorAmber + "Real-time transport unavailable, running in offline mode" + colorReset + "\r\n"
)

const bannerWidth = 58

// welcomeBanner is written on start and after a connection error.
var welcomeBanner = renderBanner(
	"Welcome to webterm",
	[]string{
		"Commands run on the remote host once connected.",
		"Offline commands: " + strings.Join(simulator.Commands(), ", "),
		"Ctrl+C interrupts the running command.",
		"Ctrl+] leaves the session.",
	},
)

func renderBanner(title string, lines []string) string {
	rule := strings.Repeat("═", bannerWidth)
	var b strings.Builder
	b.WriteString(colorCyan)
	b.WriteString("╔" + rule + "╗\r\n")
	pad := (bannerWidth - len(title)) / 2
	fmt.Fprintf(&b, "║%s%-*s║\r\n", strings.Repeat(" ", pad), bannerWidth-pad, title)
	b.WriteString("╠" + rule + "╣\r\n")
	for _, line := range lines {
		fmt.Fprintf(&b, "║  %-*s║\r\n", bannerWidth-2, line)
	}
	b.WriteString("╚" + rule + "╝")
	b.WriteString(colorReset + "\r\n")
	return b.String()
}

func renderPrompt(s Settings) string {
	return "\r\n" + colorGreen + s.PromptUser + "@" + s.PromptHost + colorReset +
		":" + colorBlue + "~" + colorReset + "$ "
}

func renderError(err error) string {
	return "\r\n" + colorRed + "Error: " + err.Error() + colorReset + "\r\n"
}

func renderUnavailable(command string) string {
	return colorRed + "Command '" + command + "' is unavailable without a server connection" + colorReset
}
