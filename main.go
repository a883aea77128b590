package main

import "github.com/mpapenbr/sentinel-replay/cmd"

func main() {
	cmd.Execute()
}
