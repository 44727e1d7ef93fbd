package main

import "github.com/countkeeper/countkeeper/cmd"

func main() {
	cmd.Execute()
}
