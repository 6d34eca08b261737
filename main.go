package main

import "github.com/samsaffron/conductor/cmd"

func main() {
	cmd.Execute()
}
