package main

import (
	"log"

	"github.com/shaunfitzgarald/events-app-sub001/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
