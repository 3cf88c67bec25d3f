package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vilass86/cardgame/internal/vrf"
)

// vrf_keygen prints a fresh oracle key pair in the env format the app reads.
func main() {
	pubOnly := flag.String("public-of", "", "print the public key for an existing hex secret")
	flag.Parse()

	if *pubOnly != "" {
		key, err := vrf.ParsePrivateKey(*pubOnly)
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid secret:", err)
			os.Exit(1)
		}
		fmt.Printf("VRF_PUBLIC_KEY=%s\n", key.Public().Hex())
		return
	}

	key := vrf.GenerateKey()
	fmt.Printf("VRF_SECRET_KEY=%s\n", key.Hex())
	fmt.Printf("VRF_PUBLIC_KEY=%s\n", key.Public().Hex())
}
