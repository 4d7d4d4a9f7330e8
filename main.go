package main

import "audioportal/cmd"

func main() {
	cmd.Execute()
}
