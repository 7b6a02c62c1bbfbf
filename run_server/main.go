package main

import (
	"fmt"
	"os"

	"arenagame/server"
)

func main() {
	if err := server.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
