package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newUpdateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the tool by pulling the latest changes from git",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.OutOrStdout(), dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Checkout to update (default: the directory of the executable)")
	return cmd
}

// runUpdate runs git pull in dir, or in the executable's directory when dir is empty.
func runUpdate(out io.Writer, dir string) error {
	if dir == "" {
		var err error
		if dir, err = installDir(); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "Updating preservicaUploader from: %s\nRunning git pull...\n\n", dir)

	git := exec.Command("git", "pull")
	git.Dir = dir
	output, err := git.CombinedOutput()
	fmt.Fprint(out, string(output))
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return errors.New("git command not found, please install git")
		}
		return fmt.Errorf("git pull: %w", err)
	}
	fmt.Fprintln(out, "\nUpdate complete! Rebuild with `go install ./cmd/preservicaUploader` to use the new version.")
	return nil
}

func installDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}
