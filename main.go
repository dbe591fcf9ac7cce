package main

import "github.com/cooperapp/cooperapp/cmd"

func main() {
	cmd.Execute()
}
