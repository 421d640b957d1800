// Package main provides the entry point for HetSim.
// HetSim simulates the communication fabric of a heterogeneous SoC:
// memory-mapped registers, IPIs, mailboxes, and two emulated small
// cores.
//
// For the full CLI, use: go run ./cmd/hetsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("HetSim - Heterogeneous SoC Fabric Simulator")
	fmt.Println("")
	fmt.Println("Usage: hetsim [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to fabric configuration JSON file")
	fmt.Println("  -timeout   Mailbox response timeout")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/hetsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/hetsim' instead.")
	}
}
