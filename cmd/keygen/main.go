package main

import (
	"fmt"
	"os"

	"github.com/tjfontaine/polyglot-request-logic/internal/auth"
)

func main() {
	var apiKey string
	switch len(os.Args) {
	case 1:
		key, err := auth.GenerateAPIKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
			os.Exit(1)
		}
		apiKey = key
	case 2:
		apiKey = os.Args[1]
	default:
		fmt.Println("Usage: go run ./cmd/keygen [api-key]")
		fmt.Println("Prints the SHA-256 hash of the given API key, or of a new random key, for use in config.yaml")
		os.Exit(1)
	}

	keyHash := auth.HashAPIKey(apiKey)

	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("SHA-256 Hash: %s\n", keyHash)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("server:\n")
	fmt.Printf("  api_keys:\n")
	fmt.Printf("    - name: \"generated\"\n")
	fmt.Printf("      key_hash: \"%s\"\n", keyHash)
}
