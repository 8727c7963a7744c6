package main

import (
	"github.com/getnao/nao-cli/cmd"
	"github.com/getnao/nao-cli/internal/config"
)

func main() {
	config.LoadEnv()
	cmd.Execute()
}
