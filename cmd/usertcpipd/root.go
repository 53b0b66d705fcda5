package main

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "usertcpipd",
	Short: "usertcpipd runs a user-space TCP/IP stack over a tap interface",
	Long: `usertcpipd attaches to a Linux tap device and runs the full
Ethernet/ARP/IPv4/IPv6/ICMP/NDP handler chain against it entirely in user
space, with no kernel network stack involvement on the tap interface.`,
	Version: "0.1.0",
}

// Execute adds all child commands to rootCmd and runs it. Called once from
// main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/usertcpipd/config.yaml",
		"config file path")
	rootCmd.AddCommand(runCmd)
}
