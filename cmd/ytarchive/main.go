// Command ytarchive keeps a local record of played and archived YouTube
// videos in sync with numbered archive playlists on the user's account.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ytarchive/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Run(ctx, os.Args[1:], cli.Options{})
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
