// Command uploadctl uploads local files to object storage and deletes stored
// objects by pointer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/input-output-hk/catalyst-forge-libs/uploads"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(uploads.New)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "uploadctl: [%s] %v\n", errors.Code(err), err)
		os.Exit(1)
	}
}
