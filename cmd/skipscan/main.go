package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Cancellation is the user interrupting; repeating it back adds
		// nothing.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "skipscan:", err)
		}
		os.Exit(1)
	}
}
