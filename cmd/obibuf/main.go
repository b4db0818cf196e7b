package main

import "github.com/obinexus/obibuf/internal/cli"

func main() {
	cli.Execute()
}
