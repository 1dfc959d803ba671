package main

import (
	"fmt"
	"os"
)

func main() {
	err := NewRootCmd().Execute()

	if closeErr := closeLogSink(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		os.Exit(1)
	}
}
