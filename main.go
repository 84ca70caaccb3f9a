// Package main provides the entry point for M0Sim.
// M0Sim is a functional ARMv6-M (Cortex-M0) instruction set simulator.
//
// For the full CLI, use: go run ./cmd/m0sim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("M0Sim - Cortex-M0 Instruction Set Simulator")
	fmt.Println("")
	fmt.Println("Usage: m0sim [options] <image>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to machine configuration JSON file")
	fmt.Println("  -trace N   Execution trace depth")
	fmt.Println("  -debug     Run under the interactive debugger")
	fmt.Println("  -v, -vv    Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/m0sim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/m0sim' instead.")
	}
}
