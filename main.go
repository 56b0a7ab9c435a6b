package main

import (
	"log"

	"partyflow/cmd"
	_ "partyflow/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
