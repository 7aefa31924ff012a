// Package migrations holds the embedded schema for each repository backend.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

var (
	Postgres = mustSub("postgres")
	SQLite   = mustSub("sqlite")
)

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
