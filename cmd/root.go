package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "Real-time attendance from classroom camera frames",
	Long: `Rollcall recognizes enrolled students in camera frames and records
their attendance for a class session. Students seen inside the present
window are marked PRESENT, those arriving within the late window LATE.

Configuration is read from the environment (optionally from a .env file).`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
