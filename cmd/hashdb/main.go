// Command hashdb is a small shell around a database directory.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/K-rangeR/hashdb/core"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  hashdb [-dir <dir>] get <key>\n")
	fmt.Fprintf(os.Stderr, "  hashdb [-dir <dir>] set <key> <value>\n")
	fmt.Fprintf(os.Stderr, "  hashdb [-dir <dir>] del <key>\n")
	fmt.Fprintf(os.Stderr, "  hashdb [-dir <dir>] stats\n")
	os.Exit(1)
}

func parseKey(s string) int32 {
	key, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad key %q: %v\n", s, err)
		os.Exit(1)
	}
	return int32(key)
}

func main() {
	dir := flag.String("dir", "hashdb-data", "data directory")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	db, err := core.Open(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch args[0] {
	case "get":
		if len(args) != 2 {
			usage()
		}

		val, err := db.Get(parseKey(args[1]))
		if errors.Is(err, core.ErrKeyNotFound) {
			fmt.Fprintf(os.Stderr, "key %s not found\n", args[1])
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to get the key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s\n", val)

	case "set":
		if len(args) != 3 {
			usage()
		}

		if err := db.Put(parseKey(args[1]), []byte(args[2])); err != nil {
			fmt.Fprintf(os.Stderr, "failed to set the key: %v\n", err)
			os.Exit(1)
		}

	case "del":
		if len(args) != 2 {
			usage()
		}

		err := db.Delete(parseKey(args[1]))
		if errors.Is(err, core.ErrKeyNotFound) {
			fmt.Fprintf(os.Stderr, "key %s not found\n", args[1])
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to delete the key: %v\n", err)
			os.Exit(1)
		}

	case "stats":
		if len(args) != 1 {
			usage()
		}

		stats, err := db.Stats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to stat segments: %v\n", err)
			os.Exit(1)
		}
		for _, st := range stats {
			fmt.Printf("segment %d: %s, %d bytes, %d keys, fingerprint %016x\n",
				st.ID, st.Path, st.Size, st.Keys, st.Fingerprint)
		}
		for _, name := range db.Leftovers() {
			fmt.Printf("warning: leftover swap file %s\n", name)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", args[0])
		usage()
	}
}
