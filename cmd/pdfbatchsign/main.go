// Command pdfbatchsign stamps and signs PDF documents in bulk.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/digitorus/pdfbatchsign/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
