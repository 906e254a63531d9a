package main

import "github.com/papapumpkin/xployt/cmd"

func main() {
	cmd.Execute()
}
