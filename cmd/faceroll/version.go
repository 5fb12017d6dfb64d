package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("faceroll v%s\n", version)
		fmt.Println("Classroom attendance from group photos")
		fmt.Println()
		fmt.Println("Build Information:")
		fmt.Printf("  Go version: %s\n", runtime.Version())
		fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Printf("  OpenCV:     %s\n", gocv.OpenCVVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
