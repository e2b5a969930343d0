package tables

import (
	"github.com/JonMunkholm/imdbload/internal/core"
)

// parseID reads a required identifier column.
func parseID(rec core.Record, col string) (int32, error) {
	raw := rec.Get(col)
	id, ok := core.ParseID(raw)
	if !ok {
		return 0, core.Malformed(col, raw, "not a valid identifier")
	}
	return id, nil
}

// nullInt reads a nullable integer column.
func nullInt(rec core.Record, col string) (string, error) {
	raw := rec.Get(col)
	v, err := core.NullInt(raw)
	if err != nil {
		return "", core.Malformed(col, raw, err.Error())
	}
	return v, nil
}

// nullFloat reads a nullable decimal column.
func nullFloat(rec core.Record, col string) (string, error) {
	raw := rec.Get(col)
	v, err := core.NullFloat(raw)
	if err != nil {
		return "", core.Malformed(col, raw, err.Error())
	}
	return v, nil
}

// flag reads a boolean flag column.
func flag(rec core.Record, col string) (string, error) {
	raw := rec.Get(col)
	v, err := core.Flag(raw)
	if err != nil {
		return "", core.Malformed(col, raw, err.Error())
	}
	return v, nil
}
