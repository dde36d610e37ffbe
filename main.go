package main

import (
	cmd "github.com/productstudio/studio/cmd/studio"
)

func main() {
	cmd.Execute()
}
