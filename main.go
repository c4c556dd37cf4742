package main

import "github.com/strrl/tp-autotune/internal/cmd"

func main() {
	cmd.Execute()
}
