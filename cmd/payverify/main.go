package main

import "github.com/vietddude/payverify/internal/cli"

func main() {
	cli.Execute()
}
