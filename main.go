package main

import "github.com/raad-downloader/raad/cmd"

func main() {
	cmd.Execute()
}
