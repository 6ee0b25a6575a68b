package main

import "github.com/clinicore/clinic-booking/cmd"

func main() {
	cmd.Execute()
}
