package main

import "github.com/jake-scott/dahua-bridge/cmd"

func main() {
	cmd.Execute()
}
