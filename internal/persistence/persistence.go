// Package persistence implements the two optional atomically-written state
// files named in spec §6: a performance snapshot (portfolio metrics) and the
// outcome ledger (last N trades). Both are written with a write-to-temp-then-
// rename sequence and a versioned schema field, grounded directly on
// chidi150c-coinbase/trader.go's saveStateFrom/loadState (json.MarshalIndent
// -> os.WriteFile(tmp) -> os.Rename). A corrupt file on load is renamed with
// a ".bad" suffix and the component starts empty (spec §6), matching the
// same file's fail-soft restore behavior rather than aborting startup.
package persistence

import (
	"encoding/json"
	"errors"
	"log"
	"os"
)

// SaveAtomic marshals v as indented JSON and writes it to path via a
// write-temp-then-rename sequence so a crash mid-write never leaves a
// truncated file behind.
func SaveAtomic(path string, v any) error {
	if path == "" {
		return nil
	}
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads path and unmarshals it into dst. If the file does not exist, it
// returns (false, nil) — the component simply starts empty. If the file
// exists but fails to parse, it is renamed to path+".bad" (spec §6 "Corrupt
// files are renamed with a .bad suffix and the component starts empty") and
// Load returns (false, nil) rather than propagating the parse error, since a
// corrupt snapshot must never block startup.
func Load(path string, dst any) (bool, error) {
	if path == "" {
		return false, nil
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(bs, dst); err != nil {
		badPath := path + ".bad"
		if renameErr := os.Rename(path, badPath); renameErr != nil {
			log.Printf("⚠️  failed to quarantine corrupt state file %s: %v", path, renameErr)
		} else {
			log.Printf("⚠️  corrupt state file %s quarantined as %s; starting empty", path, badPath)
		}
		return false, nil
	}
	return true, nil
}
