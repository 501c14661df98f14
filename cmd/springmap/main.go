package main

import "github.com/MeKo-Tech/springmap/internal/cmd"

func main() {
	cmd.Execute()
}
