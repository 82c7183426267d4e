package main

import (
	"log"

	"cpswap/services/discountd"
)

func main() {
	if err := discountd.Main(); err != nil {
		log.Fatalf("discountd: %v", err)
	}
}
