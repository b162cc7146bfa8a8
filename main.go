package main

import "github.com/hollowdong/chatbridge/cmd"

func main() {
	cmd.Execute()
}
