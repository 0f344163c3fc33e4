package main

import "sigecof/cmd"

func main() {
	cmd.Execute()
}
