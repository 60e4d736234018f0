// Command logdump prints every entry in a write-ahead log directory, one
// line per entry, in LSN order.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tuannm99/novasql/internal/wal"
)

func main() {
	dir := flag.String("dir", "", "write-ahead log directory to dump")
	flag.Parse()
	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: logdump -dir <wal-directory>")
		os.Exit(2)
	}

	if err := dumpDirectory(*dir); err != nil {
		fmt.Fprintln(os.Stderr, "logdump:", err)
		os.Exit(1)
	}
}

func dumpDirectory(dir string) error {
	fm, err := wal.NewFileManager(dir, 0)
	if err != nil {
		return err
	}
	files, err := fm.ListFiles(0)
	if err != nil {
		return err
	}

	for _, path := range files {
		fmt.Printf("begin dump file %s\n", path)
		err := wal.ReadFile(path, 0, func(e *wal.Entry) error {
			fmt.Println(describe(e))
			return nil
		})
		if err != nil {
			return fmt.Errorf("iterate %s: %w", path, err)
		}
		fmt.Printf("end dump file %s\n", path)
	}
	return nil
}

// describe renders one entry's header plus a module-tagged payload
// length, since only each module's own package knows how to decode its
// opcodes (logdump stays a thin, dependency-free viewer rather than
// importing record/btree/trx just to print field values).
func describe(e *wal.Entry) string {
	return fmt.Sprintf("lsn=%d module=%s payload_bytes=%d", e.LSN, e.Module, len(e.Payload))
}
