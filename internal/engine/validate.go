package engine

import (
	"context"
	"fmt"

	"github.com/mirajehossain/evolvex/internal/loader"
	"github.com/mirajehossain/evolvex/internal/metadata"
	"github.com/mirajehossain/evolvex/internal/version"
)

// Validate checks that the on-disk scripts agree with the recorded history
// and fails on the first divergence.
func (e *Engine) Validate(ctx context.Context) error {
	if err := e.initialize(ctx); err != nil {
		return err
	}
	scripts, err := e.loadScripts()
	if err != nil {
		return err
	}
	if err := e.validate(ctx, scripts, ModeStrict); err != nil {
		return err
	}
	e.log.Info("Validation succeeded.", nil)
	return nil
}

// validate compares the applied range of the on-disk sequence against the
// ledger. In ModeRepair a checksum mismatch is rewritten in place instead of
// failing; a missing ledger row is fatal in both modes.
func (e *Engine) validate(ctx context.Context, scripts []*loader.Script, mode Mode) error {
	exists, err := e.store.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		e.log.Info("No metadata found; validation skipped.", nil)
		return nil
	}
	applied, err := e.store.ListApplied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}
	lastApplied := *applied[len(applied)-1].Version
	start, err := e.store.FindStartVersion(ctx)
	if err != nil {
		return err
	}
	for _, sc := range scripts {
		// Versions below the baseline are taken on faith; above the last
		// applied one, nothing has been recorded yet.
		if sc.Version.Compare(start) < 0 {
			continue
		}
		if sc.Version.Compare(lastApplied) > 0 {
			break
		}
		row := findApplied(applied, sc.Version)
		if row == nil {
			return fmt.Errorf("%w: %s", ErrMetadataNotFound, sc.Name)
		}
		sum, err := sc.Checksum(e.replacer)
		if err != nil {
			return err
		}
		if sum == row.Checksum {
			continue
		}
		if mode != ModeRepair {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, sc.Name)
		}
		if err := e.store.UpdateChecksum(ctx, row.ID, sum); err != nil {
			return err
		}
		e.nbRepair++
		e.log.Info("repaired checksum", map[string]any{
			"script":   sc.Name,
			"checksum": sum,
		})
	}
	return nil
}

func findApplied(applied []metadata.Entry, v version.Version) *metadata.Entry {
	for i := range applied {
		if applied[i].Version != nil && applied[i].Version.Compare(v) == 0 {
			return &applied[i]
		}
	}
	return nil
}

// Repair revalidates the history, rewriting divergent checksums in place. It
// never inserts or deletes ledger rows.
func (e *Engine) Repair(ctx context.Context) error {
	if err := e.initialize(ctx); err != nil {
		return err
	}
	scripts, err := e.loadScripts()
	if err != nil {
		return err
	}
	if err := e.validate(ctx, scripts, ModeRepair); err != nil {
		return err
	}
	if e.nbRepair == 0 {
		e.log.Info("Nothing to repair.", nil)
	} else {
		e.log.Info(fmt.Sprintf("Successfully repaired %d migration(s).", e.nbRepair), nil)
	}
	return nil
}
