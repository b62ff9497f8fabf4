// Package main is the rgbd command line tool. It lists sensor devices and runs the capture
// pipeline against one, reporting frame timing and optionally dumping the last snapshot.
package main

import (
	"log"
	"os"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
