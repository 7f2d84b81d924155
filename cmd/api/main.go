package main

import "github.com/tutorhub/server/cmd/api/cmd"

func main() {
	cmd.Execute()
}
