package main

import "github.com/trackhive/user-services/cmd"

func main() {
	cmd.Execute()
}
