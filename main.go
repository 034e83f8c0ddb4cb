package main

import "github.com/pipewright/pipewright/cmd"

func main() {
	cmd.Execute()
}
