package relvtab

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Session is a connection to a snapshot with the relations table attached
// in its temp schema.
type Session struct {
	mod  *Module
	id   string
	db   *sql.DB
	conn *sql.Conn
}

// Open attaches clr_relations to the database at path as temp.relations.
// The database needs the relation_index table written by
// rowstore.FlushRelations.
func Open(ctx context.Context, path string) (*Session, error) {
	mod, err := Register()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	// the session holds one connection, Filter reads through the other
	db.SetMaxOpenConns(2)

	id := "db_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	mod.RegisterDB(id, db)

	conn, err := db.Conn(ctx)
	if err != nil {
		mod.UnregisterDB(id)
		_ = db.Close()
		return nil, err
	}
	create := fmt.Sprintf("CREATE VIRTUAL TABLE temp.relations USING %s(%s)", ModuleName, id)
	if _, err := conn.ExecContext(ctx, create); err != nil {
		_ = conn.Close()
		mod.UnregisterDB(id)
		_ = db.Close()
		return nil, errors.Wrap(err, "create relations table")
	}
	return &Session{mod: mod, id: id, db: db, conn: conn}, nil
}

// Query runs query on the session connection, where relations is visible.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn.QueryContext(ctx, query, args...)
}

func (s *Session) Close() error {
	s.mod.UnregisterDB(s.id)
	err := s.conn.Close()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}
