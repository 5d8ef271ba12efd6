package main

import "github.com/agentic-research/babelpatch/cmd"

func main() {
	cmd.Execute()
}
