package main

import "golang-backtest/cmd"

func main() {
	cmd.Execute()
}
