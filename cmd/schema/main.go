package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"voxelpush.ai/internal/protocol"
	"voxelpush.ai/internal/sim/level"
)

func main() {
	outDir := flag.String("out", "./schemas", "output directory")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "mkdir:", err)
		os.Exit(1)
	}

	n := 0
	for _, name := range protocol.SchemaNames() {
		raw, err := protocol.SchemaJSON(name)
		if err != nil {
			fmt.Fprintln(os.Stderr, "schema:", err)
			os.Exit(1)
		}
		if err := write(filepath.Join(*outDir, name+".schema.json"), raw); err != nil {
			fmt.Fprintln(os.Stderr, "write:", err)
			os.Exit(1)
		}
		n++
	}

	raw, err := json.MarshalIndent(level.ManifestSchema(), "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "manifest schema:", err)
		os.Exit(1)
	}
	if err := write(filepath.Join(*outDir, "pack.schema.json"), raw); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	n++
	fmt.Printf("wrote %d schemas to %s\n", n, *outDir)
}

func write(path string, raw []byte) error {
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}
