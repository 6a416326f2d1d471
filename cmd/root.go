/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "netops-gin",
	Short: "Operator-assisted network device automation platform",
	Long: `Netops Gin is an operator-assisted automation platform for network
devices. Configuration changes are submitted as tasks, reviewed by an
operator, and executed against devices over SSH or Telnet. A monitor
engine keeps device status fresh and fans updates out over WebSocket.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}
