package main

import "tinycore-go/internal/cmd"

func main() {
	cmd.Execute()
}
