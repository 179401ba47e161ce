package main

import "github.com/teamnewpipe/crashreportimporter/internal/cli"

func main() {
	cli.Execute()
}
