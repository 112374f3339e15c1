package main

import "github.com/parthshah1/carddraw/cmd"

func main() {
	cmd.Execute()
}
