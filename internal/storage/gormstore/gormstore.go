// Package gormstore implements the storage.Backend interface on a GORM
// database (Postgres or SQLite). The validation context is stored as a JSON
// column so revalidation can reconstruct the facts that justified an
// override without a schema change per fact.
package gormstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

// OverrideRecord is the GORM model for a pinned visibility/cover value.
type OverrideRecord struct {
	ID        uint   `gorm:"primarykey"`
	Observer  string `gorm:"uniqueIndex:idx_pair_kind;size:64"`
	Target    string `gorm:"uniqueIndex:idx_pair_kind;size:64"`
	Kind      string `gorm:"uniqueIndex:idx_pair_kind;size:16"`
	State     string `gorm:"size:16"`
	Reason    string
	Context   datatypes.JSON
	CreatedAt time.Time
}

// Backend persists override records through GORM.
type Backend struct {
	db *gorm.DB
}

// New creates a GORM storage backend on an established connection.
func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// Init migrates the override schema.
func (b *Backend) Init() error {
	if err := b.db.AutoMigrate(&OverrideRecord{}); err != nil {
		return fmt.Errorf("migrating override schema: %w", err)
	}
	return nil
}

// Close is a no-op; connection lifetime belongs to the database manager.
func (b *Backend) Close() error {
	return nil
}

// SaveOverride upserts the record for (pair, kind).
func (b *Backend) SaveOverride(o *core.Override) error {
	rec, err := toRecord(o)
	if err != nil {
		return err
	}
	result := b.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "observer"}, {Name: "target"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "reason", "context", "created_at"}),
	}).Create(&rec)
	if result.Error != nil {
		return fmt.Errorf("saving override %s/%s: %w", o.Pair, o.Kind, result.Error)
	}
	return nil
}

// GetOverride returns the record for (pair, kind), or nil when absent.
func (b *Backend) GetOverride(pair core.PairKey, kind core.OverrideKind) (*core.Override, error) {
	var rec OverrideRecord
	result := b.db.Where("observer = ? AND target = ? AND kind = ?",
		pair.Observer, pair.Target, string(kind)).First(&rec)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading override %s/%s: %w", pair, kind, result.Error)
	}
	return fromRecord(rec)
}

// DeleteOverride removes the record for (pair, kind).
func (b *Backend) DeleteOverride(pair core.PairKey, kind core.OverrideKind) error {
	result := b.db.Where("observer = ? AND target = ? AND kind = ?",
		pair.Observer, pair.Target, string(kind)).Delete(&OverrideRecord{})
	if result.Error != nil {
		return fmt.Errorf("deleting override %s/%s: %w", pair, kind, result.Error)
	}
	return nil
}

// ListOverrides returns every live record.
func (b *Backend) ListOverrides() ([]core.Override, error) {
	var recs []OverrideRecord
	if result := b.db.Find(&recs); result.Error != nil {
		return nil, fmt.Errorf("listing overrides: %w", result.Error)
	}
	out := make([]core.Override, 0, len(recs))
	for _, rec := range recs {
		o, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

func toRecord(o *core.Override) (OverrideRecord, error) {
	ctx, err := json.Marshal(o.Context)
	if err != nil {
		return OverrideRecord{}, fmt.Errorf("encoding validation context: %w", err)
	}

	var state string
	switch o.Kind {
	case core.KindVisibility:
		state = o.Visibility.String()
	case core.KindCover:
		state = o.Cover.String()
	default:
		return OverrideRecord{}, fmt.Errorf("unknown override kind %q", o.Kind)
	}

	return OverrideRecord{
		Observer:  o.Pair.Observer,
		Target:    o.Pair.Target,
		Kind:      string(o.Kind),
		State:     state,
		Reason:    o.Reason,
		Context:   datatypes.JSON(ctx),
		CreatedAt: o.CreatedAt,
	}, nil
}

func fromRecord(rec OverrideRecord) (*core.Override, error) {
	o := core.Override{
		Pair:      core.PairKey{Observer: rec.Observer, Target: rec.Target},
		Kind:      core.OverrideKind(rec.Kind),
		Reason:    rec.Reason,
		CreatedAt: rec.CreatedAt,
	}
	if len(rec.Context) > 0 {
		if err := json.Unmarshal(rec.Context, &o.Context); err != nil {
			return nil, fmt.Errorf("decoding validation context: %w", err)
		}
	}

	switch o.Kind {
	case core.KindVisibility:
		v, err := core.ParseVisibilityState(rec.State)
		if err != nil {
			return nil, err
		}
		o.Visibility = v
	case core.KindCover:
		c, err := core.ParseCoverState(rec.State)
		if err != nil {
			return nil, err
		}
		o.Cover = c
	default:
		return nil, fmt.Errorf("unknown override kind %q", rec.Kind)
	}
	return &o, nil
}
