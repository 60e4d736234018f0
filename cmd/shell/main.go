// Command shell is a small interactive REPL over the Db/Table façade. It
// talks to internal/engine directly: no SQL parsing, no network round
// trip, one auto-committed transaction per command.
package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tuannm99/novasql/internal/btree"
	"github.com/tuannm99/novasql/internal/config"
	"github.com/tuannm99/novasql/internal/engine"
	"github.com/tuannm99/novasql/internal/record"
)

func main() {
	dir := flag.String("dir", "./data", "database directory")
	cfgPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Println("shell:", err)
			return
		}
		cfg = loaded
	}

	db, err := engine.Init(*dir, cfg)
	if err != nil {
		fmt.Println("shell:", err)
		return
	}
	defer db.Close()

	rl, err := readline.New("novasql> ")
	if err != nil {
		fmt.Println("shell:", err)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return
		}
		if err != nil {
			fmt.Println("shell:", err)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if fields[0] == "exit" || fields[0] == "quit" {
			return
		}
		if err := dispatch(db, fields); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func dispatch(db *engine.Db, fields []string) error {
	switch fields[0] {
	case "create":
		return cmdCreate(db, fields[1:])
	case "insert":
		return cmdInsert(db, fields[1:])
	case "scan":
		return cmdScan(db, fields[1:])
	case "delete":
		return cmdDelete(db, fields[1:])
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

// cmdCreate parses: create <table> <field:type[:width]>... [pax] [f1,f2,...]
// Any token containing a comma is taken as the list of indexed fields.
func cmdCreate(db *engine.Db, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: create <table> <field:type[:width]>... [pax] [f1,f2,... (indexed fields)]")
	}
	name := args[0]
	format := engine.FormatRow
	var indexed []string
	var fields []engine.FieldMeta

	for _, tok := range args[1:] {
		switch {
		case tok == "pax":
			format = engine.FormatPAX
		case strings.Contains(tok, ","):
			indexed = strings.Split(tok, ",")
		default:
			f, err := parseFieldSpec(tok)
			if err != nil {
				return err
			}
			fields = append(fields, f)
		}
	}

	t, err := db.CreateTable(name, fields, format, indexed)
	if err != nil {
		return err
	}
	fmt.Printf("created table %q with %d field(s)\n", name, len(t.MetaFields()))
	return nil
}

func parseFieldSpec(tok string) (engine.FieldMeta, error) {
	parts := strings.Split(tok, ":")
	if len(parts) < 2 {
		return engine.FieldMeta{}, fmt.Errorf("bad field spec %q, want name:type[:width]", tok)
	}
	t, err := parseAttrType(parts[1])
	if err != nil {
		return engine.FieldMeta{}, err
	}
	width := 0
	if len(parts) == 3 {
		width, err = strconv.Atoi(parts[2])
		if err != nil {
			return engine.FieldMeta{}, fmt.Errorf("bad width in %q: %w", tok, err)
		}
	}
	return engine.FieldMeta{Name: parts[0], Type: t, Width: width}, nil
}

func parseAttrType(s string) (btree.AttrType, error) {
	switch s {
	case "int32":
		return btree.TypeInt32, nil
	case "int64":
		return btree.TypeInt64, nil
	case "float64":
		return btree.TypeFloat64, nil
	case "chars":
		return btree.TypeChars, nil
	default:
		return 0, fmt.Errorf("unknown field type %q", s)
	}
}

func cmdInsert(db *engine.Db, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: insert <table> <value>...")
	}
	t, err := db.OpenTable(args[0])
	if err != nil {
		return err
	}
	values, err := parseValues(t, args[1:])
	if err != nil {
		return err
	}

	tx := db.TrxKit().Begin()
	rid, err := t.InsertRecord(tx, values)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	fmt.Printf("inserted %s\n", rid)
	return nil
}

func parseValues(t *engine.Table, raw []string) ([]any, error) {
	fields := t.MetaFields()
	if len(raw) != len(fields) {
		return nil, fmt.Errorf("table expects %d values, got %d", len(fields), len(raw))
	}
	values := make([]any, len(raw))
	for i, f := range fields {
		switch f.Type {
		case btree.TypeInt32:
			v, err := strconv.ParseInt(raw[i], 10, 32)
			if err != nil {
				return nil, err
			}
			values[i] = int32(v)
		case btree.TypeInt64:
			v, err := strconv.ParseInt(raw[i], 10, 64)
			if err != nil {
				return nil, err
			}
			values[i] = v
		case btree.TypeFloat64:
			v, err := strconv.ParseFloat(raw[i], 64)
			if err != nil {
				return nil, err
			}
			values[i] = v
		case btree.TypeChars:
			values[i] = raw[i]
		}
	}
	return values, nil
}

func cmdScan(db *engine.Db, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: scan <table>")
	}
	t, err := db.OpenTable(args[0])
	if err != nil {
		return err
	}
	tx := db.TrxKit().Begin()
	defer func() { _ = tx.Commit() }()

	scanner := t.GetRecordScanner(tx, false)
	return scanner.Scan(func(row engine.Row) error {
		fmt.Printf("%s %v\n", row.RID, row.Values)
		return nil
	})
}

func cmdDelete(db *engine.Db, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: delete <table> <pagenum:slot>")
	}
	t, err := db.OpenTable(args[0])
	if err != nil {
		return err
	}
	rid, err := parseRID(args[1])
	if err != nil {
		return err
	}

	tx := db.TrxKit().Begin()
	if err := t.DeleteRecord(tx, rid); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func parseRID(s string) (record.RID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return record.RID{}, fmt.Errorf("bad rid %q, want pagenum:slot", s)
	}
	pn, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return record.RID{}, err
	}
	slot, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return record.RID{}, err
	}
	return record.RID{PageNum: uint32(pn), Slot: uint16(slot)}, nil
}
