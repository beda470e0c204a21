package ledger

import (
	"context"
	"time"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/storage"
	"github.com/c360/semledger/vocabulary"
)

// snapshot is the serialized form of a database version: its full
// statement history plus the reference-predicate set needed to rebuild
// the OPST index. The schema itself is not stored; it is rebuilt from
// the restored indexes, which keeps the snapshot format independent of
// schema-cache internals.
type snapshot struct {
	Alias   string        `json:"alias"`
	T       int64         `json:"t"`
	ECount  Counters      `json:"ecount"`
	Stats   Stats         `json:"stats"`
	RefPIDs []flake.ID    `json:"ref_pids"`
	Flakes  []flakeRecord `json:"flakes"`
}

// flakeRecord serializes one statement. Pointer fields keep absent
// object variants out of the document entirely.
type flakeRecord struct {
	S  flake.ID   `json:"s"`
	P  flake.ID   `json:"p"`
	Dt flake.ID   `json:"dt"`
	T  int64      `json:"t"`
	Op bool       `json:"op"`
	I  *int       `json:"i,omitempty"`
	OR *flake.ID  `json:"o_ref,omitempty"`
	OB *bool      `json:"o_bool,omitempty"`
	OI *int64     `json:"o_int,omitempty"`
	OF *float64   `json:"o_float,omitempty"`
	OS *string    `json:"o_str,omitempty"`
	OT *time.Time `json:"o_time,omitempty"`
}

func encodeFlake(f flake.Flake) flakeRecord {
	rec := flakeRecord{S: f.Subject, P: f.Predicate, Dt: f.Datatype, T: f.T, Op: f.Op}
	if f.Meta != nil {
		i := f.Meta.Index
		rec.I = &i
	}
	switch f.Object.Kind {
	case flake.KindRef:
		rec.OR = &f.Object.Ref
	case flake.KindBool:
		b := f.Object.Bool()
		rec.OB = &b
	case flake.KindInt:
		rec.OI = &f.Object.Int
	case flake.KindFloat:
		rec.OF = &f.Object.Flt
	case flake.KindString:
		rec.OS = &f.Object.Str
	case flake.KindTime:
		rec.OT = &f.Object.Tm
	}
	return rec
}

func (rec flakeRecord) decode() flake.Flake {
	f := flake.Flake{Subject: rec.S, Predicate: rec.P, Datatype: rec.Dt, T: rec.T, Op: rec.Op}
	if rec.I != nil {
		f.Meta = &flake.Meta{Index: *rec.I}
	}
	switch {
	case rec.OR != nil:
		f.Object = flake.RefValue(*rec.OR)
	case rec.OB != nil:
		f.Object = flake.BoolValue(*rec.OB)
	case rec.OI != nil:
		f.Object = flake.IntValue(*rec.OI)
	case rec.OF != nil:
		f.Object = flake.FloatValue(*rec.OF)
	case rec.OS != nil:
		f.Object = flake.StringValue(*rec.OS)
	case rec.OT != nil:
		f.Object = flake.TimeValue(*rec.OT)
	}
	return f
}

// WriteSnapshot serializes db and writes it content-addressed,
// returning the snapshot address for the next commit's index field.
func WriteSnapshot(ctx context.Context, store storage.Store, db *DB) (string, error) {
	snap := snapshot{
		Alias:  db.Alias,
		T:      db.T,
		ECount: db.ECount,
		Stats:  db.Stats,
		Flakes: make([]flakeRecord, 0, db.TSPO.Len()),
	}
	for pid := range db.Schema.RefPIDs() {
		snap.RefPIDs = append(snap.RefPIDs, pid)
	}
	db.TSPO.Ascend(func(f flake.Flake) bool {
		snap.Flakes = append(snap.Flakes, encodeFlake(f))
		return true
	})
	addr, err := storage.WriteJSON(ctx, store, snap)
	if err != nil {
		return "", err
	}
	return addr, nil
}

// ReadSnapshot restores a database version from a snapshot address.
// The indexes are rebuilt from the stored statements and the schema is
// rebuilt from the restored indexes, so a snapshot load and a full
// chain replay converge on the same version.
func ReadSnapshot(ctx context.Context, store storage.Store, address string) (*DB, error) {
	var snap snapshot
	if err := storage.ReadJSON(ctx, store, address, &snap); err != nil {
		return nil, err
	}

	refPIDs := make(map[flake.ID]bool, len(snap.RefPIDs))
	for _, pid := range snap.RefPIDs {
		refPIDs[pid] = true
	}

	flakes := make([]flake.Flake, 0, len(snap.Flakes))
	var refFlakes []flake.Flake
	for _, rec := range snap.Flakes {
		f := rec.decode()
		flakes = append(flakes, f)
		if f.Object.IsRef() && refPIDs[f.Predicate] {
			refFlakes = append(refFlakes, f)
		}
	}

	db := NewDB(snap.Alias)
	db.T = snap.T
	db.ECount = snap.ECount
	db.Stats = snap.Stats
	db.SPOT = db.SPOT.With(flakes)
	db.PSOT = db.PSOT.With(flakes)
	db.POST = db.POST.With(flakes)
	db.OPST = db.OPST.With(refFlakes)
	db.TSPO = db.TSPO.With(flakes)

	schema, err := vocabulary.VocabMap(ctx, db)
	if err != nil {
		return nil, errors.WrapFatal(err, "ledger", "ReadSnapshot", "rebuild schema")
	}
	db.Schema = schema
	return db, nil
}
