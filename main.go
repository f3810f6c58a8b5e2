// Package main is the entry point for the castwave client
package main

import (
	"github.com/castwave/client/cmd"
)

func main() {
	cmd.Execute()
}
