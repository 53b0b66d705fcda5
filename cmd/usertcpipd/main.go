// Command usertcpipd runs the user-space TCP/IP stack as a daemon attached
// to a Linux tap interface.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
