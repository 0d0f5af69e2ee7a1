package main

import (
	"flag"
	"fmt"
	"os"

	"relayq/pkg/logger"
	"relayq/pkg/store"
)

// inspect dumps checkpoint records from a relayq database by key prefix.
// Run it against a stopped daemon's data directory.
func main() {
	var dbPath string
	var prefix string
	var keysOnly bool
	flag.StringVar(&dbPath, "db", "", "checkpoint database path")
	flag.StringVar(&prefix, "prefix", "", "key prefix to enumerate (e.g. queue.actor1.)")
	flag.BoolVar(&keysOnly, "keys", false, "print keys only, without values")
	flag.Parse()
	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}

	logger.InitWithLevel("error")
	st, err := store.Open(dbPath, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	keys, err := st.ListKeys(prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list keys: %v\n", err)
		os.Exit(1)
	}
	for _, k := range keys {
		if keysOnly {
			fmt.Println(k)
			continue
		}
		v, ok, err := st.Get(k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", k, err)
			os.Exit(1)
		}
		if !ok {
			continue
		}
		fmt.Printf("%s\t%s\n", k, v)
	}
}
