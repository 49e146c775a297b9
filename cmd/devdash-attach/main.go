// devdash-attach connects the local terminal to a running devdash terminal
// over its WebSocket bridge. The local terminal is put in raw mode, window
// size changes are forwarded, and Ctrl+] followed by q detaches without
// affecting the remote process.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var server, token string

	flagSet := pflag.NewFlagSet("devdash-attach", pflag.ContinueOnError)
	flagSet.StringVarP(&server, "server", "s", "http://localhost:8000", "devdash server URL")
	flagSet.StringVarP(&token, "token", "t", "", "API token (default: $DEVDASH_AUTH_TOKEN)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) != 1 {
		printHelp(flagSet)
		return fmt.Errorf("expected exactly one terminal id, got %d arguments", len(args))
	}
	if token == "" {
		token = os.Getenv("DEVDASH_AUTH_TOKEN")
	}

	endpoint, err := bridgeURL(server, args[0])
	if err != nil {
		return err
	}
	session := &attachSession{
		endpoint: endpoint,
		token:    token,
		stdin:    os.Stdin,
		stdout:   os.Stdout,
	}
	return session.run(context.Background())
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: devdash-attach [flags] <terminal-id>\n\nFlags:\n")
	flagSet.PrintDefaults()
}
