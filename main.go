package main

import "github.com/bygga/bygga/cmd/root"

func main() {
	root.Execute()
}
