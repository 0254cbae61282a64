package main

import (
	"fmt"
	"io"
	"os"

	"rollout/internal/client"
	"rollout/internal/deployment"
)

const (
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

// palette holds the escape codes used for a writer, empty when the writer is
// not a terminal.
type palette struct {
	red, yellow, reset string
}

func paletteFor(w io.Writer) palette {
	f, ok := w.(*os.File)
	if !ok {
		return palette{}
	}
	stat, err := f.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice == 0 {
		return palette{}
	}
	return palette{red: colorRed, yellow: colorYellow, reset: colorReset}
}

// printUnauthorized reports a rejected token.
func printUnauthorized(w io.Writer) {
	p := paletteFor(w)
	fmt.Fprintf(w, "%sError: unauthorized!%s\n", p.red, p.reset)
}

// printOutcome prints the status line followed by the command output.
// failed is nil when the command succeeded.
func printOutcome(w io.Writer, result *deployment.CommandResult, failed *client.CommandFailedError) {
	p := paletteFor(w)

	if failed != nil {
		fmt.Fprintf(w, "%sError status code %d!%s\n\n", p.red, failed.Code, p.reset)
	} else {
		fmt.Fprintf(w, "%sOkay.%s\n\n", p.yellow, p.reset)
	}

	fmt.Fprintf(w, "STDOUT:\n\n%s\n", result.Stdout)
	fmt.Fprintf(w, "STDERR:\n\n%s\n", result.Stderr)
}
