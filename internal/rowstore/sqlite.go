package rowstore

import (
	"database/sql"
	"encoding/binary"

	"github.com/RoaringBitmap/roaring"
	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/clrmeta/internal/metadata"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS table_rows (
	tbl  INTEGER NOT NULL,
	rid  INTEGER NOT NULL,
	cols BLOB NOT NULL,
	PRIMARY KEY (tbl, rid)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS heaps (
	name TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
`

const relationSchema = `
CREATE TABLE IF NOT EXISTS relation_index (
	relation TEXT NOT NULL,
	owner    INTEGER NOT NULL,
	bitmap   BLOB NOT NULL,
	PRIMARY KEY (relation, owner)
) WITHOUT ROWID;
`

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	return db, nil
}

// packColumns stores raw column values as little-endian uint32s.
func packColumns(cols []uint32) []byte {
	out := make([]byte, 4*len(cols))
	for i, c := range cols {
		binary.LittleEndian.PutUint32(out[4*i:], c)
	}
	return out
}

func unpackColumns(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, errors.Newf("column blob of %d bytes", len(b))
	}
	cols := make([]uint32, len(b)/4)
	for i := range cols {
		cols[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return cols, nil
}

// WriteSQLite snapshots every row and heap of store into the database at
// path, replacing any earlier snapshot there.
func WriteSQLite(store *MemoryStore, path string) (err error) {
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		return err
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		return err
	}
	if _, err := db.Exec(snapshotSchema); err != nil {
		return errors.Wrap(err, "create schema")
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec("DELETE FROM table_rows"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM heaps"); err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO table_rows (tbl, rid, cols) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, t := range metadata.Tables() {
		for i, row := range store.rows[t] {
			if _, err := stmt.Exec(int(t), i+1, packColumns(row.Columns())); err != nil {
				return errors.Wrapf(err, "insert %s row %d", t, i+1)
			}
		}
	}

	h := store.heaps
	for name, data := range map[string][]byte{
		"#Strings": h.Strings,
		"#Blob":    h.Blobs,
		"#GUID":    h.GUIDs,
		"#US":      h.UserString,
	} {
		if data == nil {
			data = []byte{}
		}
		if _, err := tx.Exec("INSERT INTO heaps (name, data) VALUES (?, ?)", name, data); err != nil {
			return errors.Wrapf(err, "insert heap %s", name)
		}
	}
	return tx.Commit()
}

// OpenSQLite loads a snapshot written by WriteSQLite. Rows are read in
// one ordered scan and must be dense per table.
func OpenSQLite(path string) (*MemoryStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	var heaps Heaps
	hrows, err := db.Query("SELECT name, data FROM heaps")
	if err != nil {
		return nil, errors.Wrap(err, "query heaps")
	}
	for hrows.Next() {
		var name string
		var data []byte
		if err := hrows.Scan(&name, &data); err != nil {
			_ = hrows.Close()
			return nil, err
		}
		switch name {
		case "#Strings":
			heaps.Strings = data
		case "#Blob":
			heaps.Blobs = data
		case "#GUID":
			heaps.GUIDs = data
		case "#US":
			heaps.UserString = data
		default:
			_ = hrows.Close()
			return nil, errors.Newf("unknown heap %q", name)
		}
	}
	if err := hrows.Close(); err != nil {
		return nil, err
	}

	var rows [numTables][]metadata.Row
	trows, err := db.Query("SELECT tbl, rid, cols FROM table_rows ORDER BY tbl, rid")
	if err != nil {
		return nil, errors.Wrap(err, "query rows")
	}
	defer func() { _ = trows.Close() }()
	for trows.Next() {
		var tbl, rid int
		var packed []byte
		if err := trows.Scan(&tbl, &rid, &packed); err != nil {
			return nil, err
		}
		t := metadata.TableKind(tbl)
		if tbl < 0 || !t.IsTable() {
			return nil, errors.Newf("row for unknown table %d", tbl)
		}
		if rid != len(rows[t])+1 {
			return nil, errors.Newf("%s: rid %d follows rid %d", t, rid, len(rows[t]))
		}
		cols, err := unpackColumns(packed)
		if err != nil {
			return nil, errors.Wrapf(err, "%s rid %d", t, rid)
		}
		row, err := metadata.DecodeRow(t, cols)
		if err != nil {
			return nil, errors.Wrapf(err, "%s rid %d", t, rid)
		}
		rows[t] = append(rows[t], row)
	}
	if err := trows.Err(); err != nil {
		return nil, err
	}
	return newStore(rows, heaps), nil
}

// RelationSource enumerates owner to children relations, as
// member.Module does.
type RelationSource interface {
	EachRelation(fn func(relation string, owner metadata.Token, children *roaring.Bitmap))
}

// FlushRelations writes every relation of src to the relation_index table
// at path with the child sets serialized as roaring bitmaps. It returns the
// number of rows written.
func FlushRelations(src RelationSource, path string) (n int, err error) {
	db, err := openDB(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := db.Exec(relationSchema); err != nil {
		return 0, errors.Wrap(err, "create relation schema")
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.Exec("DELETE FROM relation_index"); err != nil {
		return 0, err
	}
	stmt, err := tx.Prepare("INSERT INTO relation_index (relation, owner, bitmap) VALUES (?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	var werr error
	src.EachRelation(func(relation string, owner metadata.Token, children *roaring.Bitmap) {
		if werr != nil {
			return
		}
		data, err := children.ToBytes()
		if err != nil {
			werr = errors.Wrapf(err, "serialize %s of %s", relation, owner)
			return
		}
		if _, err := stmt.Exec(relation, int64(owner.Uint32()), data); err != nil {
			werr = errors.Wrapf(err, "insert %s of %s", relation, owner)
			return
		}
		n++
	})
	if werr != nil {
		return 0, werr
	}
	return n, tx.Commit()
}

// ReadRelation loads one child set written by FlushRelations. A missing
// row is an empty set.
func ReadRelation(path, relation string, owner metadata.Token) (*roaring.Bitmap, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	var data []byte
	err = db.QueryRow("SELECT bitmap FROM relation_index WHERE relation = ? AND owner = ?",
		relation, int64(owner.Uint32())).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return roaring.New(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s of %s", relation, owner)
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, errors.Wrapf(err, "decode %s of %s", relation, owner)
	}
	return bm, nil
}
