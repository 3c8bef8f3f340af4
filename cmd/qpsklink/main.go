package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	cmd, a := newRootCmd()
	if err := execute(cmd, a); err != nil {
		os.Exit(1)
	}
}

// execute runs cmd and always tears the app down, also when the command failed.
func execute(cmd *cobra.Command, a *app) error {
	err := cmd.Execute()
	if terr := a.teardown(); terr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", terr)
		err = errors.Join(err, terr)
	}
	return err
}
