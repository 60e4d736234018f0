// Package engine ties the record manager, B+tree indexes, and MVCC
// transaction manager together behind one JSON-catalog-backed API,
// replaying every subsystem's log before serving requests.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tuannm99/novasql/internal/btree"
	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/config"
	"github.com/tuannm99/novasql/internal/dwb"
	"github.com/tuannm99/novasql/internal/record"
	"github.com/tuannm99/novasql/internal/trx"
	"github.com/tuannm99/novasql/internal/wal"
)

// Db owns every open table, the shared buffer pool manager, the
// write-ahead log every module appends to, the double-write buffer that
// stages pages ahead of their home-file writes, and the transaction kit
// rows are stamped against.
type Db struct {
	dir string
	cfg *config.DBConfig

	bp     *bufferpool.Manager
	log    wal.Handler
	dw     *dwb.DiskDoubleWriteBuffer
	trxKit *trx.Kit

	tables map[string]*Table
}

// Init opens dir as a database directory, runs the double-write buffer's
// Recover, replays every table's and index's log entries against the
// shared log before the log handler starts accepting new writes, and
// reopens every previously created table. Recover runs before any table or
// index file is opened on the buffer-pool manager, so no staged copy finds
// its home pool and no torn page is repaired from the double-write buffer.
func Init(dir string, cfg *config.DBConfig) (*Db, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create %s: %w", dir, err)
	}

	log, err := newLogHandler(dir, cfg)
	if err != nil {
		return nil, err
	}

	dw, err := dwb.OpenDiskDoubleWriteBuffer(filepath.Join(dir, "dwb.stage"), cfg.Storage.PageSize, cfg.DoubleWrite.MaxStagedPages)
	if err != nil {
		return nil, err
	}

	bp := bufferpool.NewManager(log, dw)
	if err := dw.Recover(bp); err != nil {
		return nil, err
	}

	db := &Db{
		dir:    dir,
		cfg:    cfg,
		bp:     bp,
		log:    log,
		dw:     dw,
		trxKit: trx.NewKit(log),
		tables: make(map[string]*Table),
	}

	names, err := db.listTableNames()
	if err != nil {
		return nil, err
	}

	recordReplayer := record.NewLogReplayer()
	btreeReplayer := btree.NewLogReplayer()
	trxReplayer := trx.NewMvccTrxLogReplayer(db.trxKit)

	for _, name := range names {
		t, err := db.openTableFiles(name)
		if err != nil {
			return nil, fmt.Errorf("engine: open table %q: %w", name, err)
		}
		db.tables[name] = t

		recordReplayer.Register(t.recordReplayTarget())
		for _, rt := range t.btreeReplayTargets() {
			btreeReplayer.Register(rt)
		}
		trxReplayer.Register(trx.ReplayTarget{Name: name, Store: t.store})
	}

	if err := db.log.Replay(0, map[wal.ModuleID]wal.ModuleReplayer{
		wal.ModuleRecordManager: recordReplayer,
		wal.ModuleBPlusTree:     btreeReplayer,
		wal.ModuleTransaction:   trxReplayer,
	}); err != nil {
		return nil, err
	}

	if err := db.log.Start(); err != nil {
		return nil, err
	}
	return db, nil
}

func newLogHandler(dir string, cfg *config.DBConfig) (wal.Handler, error) {
	switch cfg.LogHandlerName {
	case "vacuous":
		return &wal.VacuousHandler{}, nil
	case "disk", "":
		return wal.NewDiskHandler(filepath.Join(dir, cfg.WAL.Dir), cfg.WAL.MaxEntriesPerFile, cfg.WAL.MaxBufferedBytes)
	default:
		return nil, fmt.Errorf("engine: unknown log_handler_name %q", cfg.LogHandlerName)
	}
}

// TrxKit exposes the shared transaction kit so callers can Begin().
func (db *Db) TrxKit() *trx.Kit { return db.trxKit }

// CreateTable allocates a fresh data file plus one B+tree index per
// indexedField, writes the table's catalog entry, and registers it as
// open.
func (db *Db) CreateTable(name string, fields []FieldMeta, format StorageFormat, indexedFields []string) (*Table, error) {
	if _, exists := db.tables[name]; exists {
		return nil, fmt.Errorf("engine: table %q already exists", name)
	}

	dataPath := filepath.Join(db.tableDir(), name+".data")
	poolID, err := db.bp.OpenFile(dataPath, db.cfg.Storage.PageSize, db.cfg.BufferPool.FramesPerFile)
	if err != nil {
		return nil, err
	}

	meta := &TableMeta{
		Name:      name,
		Fields:    fields,
		Format:    format,
		DataPath:  dataPath,
		CreatedAt: time.Now(),
	}

	t := db.newTable(name, poolID, *meta)

	for _, fname := range indexedFields {
		fi := meta.fieldIndex(fname)
		if fi < 0 {
			return nil, fmt.Errorf("engine: table %q has no field %q to index", name, fname)
		}
		f := fields[fi]
		idxPath := filepath.Join(db.tableDir(), name+"."+fname+".idx")
		idxPoolID, err := db.bp.OpenFile(idxPath, db.cfg.Storage.PageSize, db.cfg.BufferPool.FramesPerFile)
		if err != nil {
			return nil, err
		}
		tree, headerPageNum, err := btree.CreateTree(db.bp, idxPoolID, db.log, f.Type, f.attrWidth())
		if err != nil {
			return nil, err
		}
		meta.Indexes = append(meta.Indexes, IndexMeta{Field: fname, Path: idxPath, HeaderPageNum: headerPageNum})
		t.idx = append(t.idx, index{field: fi, poolID: idxPoolID, tree: tree})
	}
	t.meta = *meta

	if err := db.writeTableMeta(meta); err != nil {
		return nil, err
	}
	db.tables[name] = t
	return t, nil
}

// OpenTable returns an already-open table, or an error if none exists
// with that name.
func (db *Db) OpenTable(name string) (*Table, error) {
	if t, ok := db.tables[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("engine: table %q is not open", name)
}

// openTableFiles reopens one table's data file and every index file
// named in its persisted meta, deriving fresh bufferpool.ID values for
// this process (they are never persisted themselves, see IndexMeta).
func (db *Db) openTableFiles(name string) (*Table, error) {
	meta, err := db.readTableMeta(name)
	if err != nil {
		return nil, err
	}

	poolID, err := db.bp.OpenFile(meta.DataPath, db.cfg.Storage.PageSize, db.cfg.BufferPool.FramesPerFile)
	if err != nil {
		return nil, err
	}
	t := db.newTable(name, poolID, *meta)

	for _, im := range meta.Indexes {
		fi := meta.fieldIndex(im.Field)
		if fi < 0 {
			return nil, fmt.Errorf("engine: table %q meta names unknown index field %q", name, im.Field)
		}
		idxPoolID, err := db.bp.OpenFile(im.Path, db.cfg.Storage.PageSize, db.cfg.BufferPool.FramesPerFile)
		if err != nil {
			return nil, err
		}
		tree, err := btree.OpenTree(db.bp, idxPoolID, db.log, im.HeaderPageNum)
		if err != nil {
			return nil, err
		}
		t.idx = append(t.idx, index{field: fi, poolID: idxPoolID, tree: tree})
	}
	return t, nil
}

func (db *Db) newTable(name string, poolID bufferpool.ID, meta TableMeta) *Table {
	t := &Table{name: name, bp: db.bp, poolID: poolID, meta: meta}
	if meta.Format == FormatPAX {
		t.layout = record.PaxLayout{Schema: t.schema()}
	} else {
		t.layout = record.RowLayout{RecordSize: t.schema().RowSize()}
	}
	t.store = record.NewFileHandler(db.bp, poolID, t.layout, db.log)
	return t
}

// Close stops the log handler (flushing anything buffered), closes every
// open table's data and index files, and closes the double-write stage.
func (db *Db) Close() error {
	for name, t := range db.tables {
		if err := db.bp.Close(t.poolID); err != nil {
			slog.Error("engine: close table data file", "table", name, "err", err)
		}
		for _, ix := range t.idx {
			if err := db.bp.Close(ix.poolID); err != nil {
				slog.Error("engine: close index file", "table", name, "field", ix.field, "err", err)
			}
		}
	}
	if err := db.dw.Close(); err != nil {
		slog.Error("engine: close double-write stage", "err", err)
	}
	return db.log.Stop()
}
