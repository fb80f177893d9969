package main

import "github.com/vibast-solutions/ms-go-transactions/cmd"

func main() {
	cmd.Execute()
}
