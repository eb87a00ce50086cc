package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/studystreak/internal/app"

	// distrolessイメージにはzoneinfoがないため、IANAタイムゾーンを埋め込む
	_ "time/tzdata"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "studystreak: %v\n", err)
		os.Exit(1)
	}
}
