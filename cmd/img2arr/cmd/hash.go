package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/emofalling/img2arr/internal/buildhash"
	"github.com/emofalling/img2arr/internal/platform"
)

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Build-hash staleness helpers for a plug-in's native source directory",
}

var hashSaveCmd = &cobra.Command{
	Use:   "save <plugin-source-dir>",
	Short: "Compute and save the current platform's build hash for a plug-in's sources",
	Args:  cobra.ExactArgs(1),
	RunE:  runHashSave,
}

var hashVerifyCmd = &cobra.Command{
	Use:   "verify <plugin-source-dir>",
	Short: "Check whether a plug-in's saved build hash matches its current sources",
	Args:  cobra.ExactArgs(1),
	RunE:  runHashVerify,
}

func init() {
	hashCmd.AddCommand(hashSaveCmd, hashVerifyCmd)
	rootCmd.AddCommand(hashCmd)
}

func runHashSave(_ *cobra.Command, args []string) error {
	dir := args[0]
	hashPath := filepath.Join(dir, ".hash")
	tag := platform.Current().String()

	current, err := buildhash.ComputeHash(dir)
	if err != nil {
		return ioError(err)
	}
	if err := buildhash.SaveHash(hashPath, tag, current); err != nil {
		return ioError(err)
	}

	fmt.Printf("%s: saved %s:%s\n", hashPath, tag, current)
	return nil
}

func runHashVerify(_ *cobra.Command, args []string) error {
	dir := args[0]
	hashPath := filepath.Join(dir, ".hash")
	tag := platform.Current().String()

	upToDate, err := buildhash.VerifyHash(hashPath, tag, dir)
	if err != nil {
		return ioError(err)
	}
	if !upToDate {
		fmt.Printf("%s: needs rebuild for %s\n", dir, tag)
		return loadError(fmt.Errorf("build hash stale or missing for %s", tag))
	}

	fmt.Printf("%s: up to date for %s\n", dir, tag)
	return nil
}
