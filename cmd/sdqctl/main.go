package main

import "github.com/bewest/sdqctl-sub002/internal/cli"

func main() {
	cli.Execute()
}
