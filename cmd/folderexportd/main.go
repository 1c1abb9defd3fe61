// Command folderexportd runs the folderexport daemon: the worker pool, the
// retention sweep, and the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "folderexportd:", err)
		}
		os.Exit(1)
	}
}
