package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/iqrahapp/iqrah-core/internal/artifact"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "install or inspect the content graph artifact",
}

var setupInstallCmd = &cobra.Command{
	Use:   "install <archive>",
	Short: "atomically install a content graph artifact, gated by a stability check against the current baseline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		watcher, err := newConfigOnly()
		if err != nil {
			return err
		}
		defer watcher.Close()

		digest, err := fileDigest(args[0])
		if err != nil {
			return fmt.Errorf("digest archive: %w", err)
		}

		inst := artifact.New(watcher.Current().Content.DatabasePath)
		version, err := inst.Install(args[0], digest)
		if err != nil {
			return err
		}
		cliLogger.Sugar().Infof("installed content artifact graph_version=%s", version)
		fmt.Printf("installed graph_version=%s\n", version)
		return nil
	},
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func init() {
	setupCmd.AddCommand(setupInstallCmd)
}
