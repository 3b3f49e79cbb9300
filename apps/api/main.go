package main

import "log"

func main() {
	if err := startWithDig(); err != nil {
		log.Fatal(err)
	}
}
