package main

import "AzzKaraoke/cmd"

func main() {
	cmd.Execute()
}
