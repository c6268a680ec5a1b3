package main

import "github.com/kozaktomas/face-groups/cmd"

func main() {
	cmd.Execute()
}
