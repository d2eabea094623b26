// Package main is the entry point for the nest CLI.
package main

import "nest.dev/pkg/nest/cmd"

func main() {
	cmd.Execute()
}
