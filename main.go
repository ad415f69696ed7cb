package main

import "github.com/kozaktomas/frame-curator/cmd"

func main() {
	cmd.Execute()
}
