package main

import "github.com/agentic-research/clrmeta/cmd"

func main() {
	cmd.Execute()
}
