package main

import "github.com/configplane/configplane/cmd/cfgpl/cmd"

func main() {
	cmd.Execute()
}
