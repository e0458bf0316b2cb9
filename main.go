// Reelgraph - movie relationship graph.
//
// Reelgraph turns a list of movie records into a graph of movies, directors
// and actors, and finds the shortest chain linking any two of them.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/reelgraph/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
