package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/tuannm99/novasql/internal/btree"
)

// StorageFormat selects which record.Layout a table's data file uses.
type StorageFormat uint8

const (
	FormatRow StorageFormat = iota
	FormatPAX
)

// FieldMeta describes one user-visible column. Width is only meaningful
// for TypeChars; other types derive their width from btree.AttrWidth.
type FieldMeta struct {
	Name  string         `json:"name"`
	Type  btree.AttrType `json:"type"`
	Width int            `json:"width"`
}

func (f FieldMeta) attrWidth() int { return btree.AttrWidth(f.Type, f.Width) }

// IndexMeta records where one field's B+tree index lives on disk, so
// OpenTable can reopen it via btree.OpenTree instead of rebuilding it.
//
// Path is the index file's full path as CreateTable built it (the owning
// Db's directory joined with tables/<table>.<field>.idx): bufferpool.ID
// values are assigned fresh per process (internal/bufferpool/manager.go's
// Manager.OpenFile counts up from scratch on every open), so only the
// file path is safe to persist across restarts.
type IndexMeta struct {
	Field         string `json:"field"`
	Path          string `json:"path"`
	HeaderPageNum uint32 `json:"header_page_num"`
}

// TableMeta is a table's durable catalog entry, written as JSON next to
// its data file and carrying the field schema, storage format, and index
// list needed to reopen the table exactly as it was created.
type TableMeta struct {
	Name      string        `json:"name"`
	Fields    []FieldMeta   `json:"fields"`
	Format    StorageFormat `json:"format"`
	DataPath  string        `json:"data_path"`
	Indexes   []IndexMeta   `json:"indexes"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (m *TableMeta) fieldIndex(name string) int {
	for i, f := range m.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (m *TableMeta) indexFor(field string) *IndexMeta {
	for i := range m.Indexes {
		if m.Indexes[i].Field == field {
			return &m.Indexes[i]
		}
	}
	return nil
}

func (db *Db) tableDir() string { return filepath.Join(db.dir, "tables") }

func (db *Db) tableMetaPath(name string) string {
	return filepath.Join(db.tableDir(), name+".meta.json")
}

func (db *Db) writeTableMeta(meta *TableMeta) error {
	if err := os.MkdirAll(db.tableDir(), 0o755); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(db.tableMetaPath(meta.Name), data, 0o644)
}

func (db *Db) readTableMeta(name string) (*TableMeta, error) {
	data, err := os.ReadFile(db.tableMetaPath(name))
	if err != nil {
		return nil, err
	}
	var meta TableMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (db *Db) listTableNames() ([]string, error) {
	entries, err := os.ReadDir(db.tableDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	const suffix = ".meta.json"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if len(n) > len(suffix) && n[len(n)-len(suffix):] == suffix {
			names = append(names, n[:len(n)-len(suffix)])
		}
	}
	return names, nil
}
