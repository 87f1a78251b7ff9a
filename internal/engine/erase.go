package engine

import (
	"context"
	"fmt"
)

// Erase destroys the schemas the ledger gives the engine a mandate over:
// schemas it created are dropped, schemas it first observed empty are emptied.
// Everything else is left untouched.
func (e *Engine) Erase(ctx context.Context) error {
	if e.cfg.IsEraseDisabled {
		e.log.Info("Erase is disabled; nothing done.", nil)
		return nil
	}
	if err := e.initialize(ctx); err != nil {
		return err
	}
	return e.erase(ctx)
}

// erase assumes initialize has run. Consent markers are read for every schema
// before any destructive statement, because the ledger itself lives in one of
// the schemas about to be dropped or emptied.
func (e *Engine) erase(ctx context.Context) error {
	if e.cfg.IsEraseDisabled {
		e.log.Info("Erase is disabled; nothing done.", nil)
		return nil
	}
	exists, err := e.store.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		e.log.Info("No metadata found; nothing to erase.", nil)
		return nil
	}

	type consent struct {
		name  string
		drop  bool
		erase bool
	}
	var consents []consent
	for _, name := range e.schemasToConsider() {
		c := consent{name: name}
		if c.drop, err = e.store.CanDropSchema(ctx, name); err != nil {
			return err
		}
		if c.erase, err = e.store.CanEraseSchema(ctx, name); err != nil {
			return err
		}
		consents = append(consents, c)
	}

	tx, err := e.helper.Begin(ctx)
	if err != nil {
		return err
	}
	for _, c := range consents {
		switch {
		case c.drop:
			if err := e.helper.DropSchema(ctx, tx, c.name); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("%w: %s: %v", ErrDropSchemaFailed, c.name, err)
			}
			e.log.Info("dropped schema", map[string]any{"schema": c.name})
		case c.erase:
			if err := e.helper.EraseSchema(ctx, tx, c.name); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("%w: %s: %v", ErrEraseSchemaFailed, c.name, err)
			}
			e.log.Info("erased schema", map[string]any{"schema": c.name})
		default:
			e.log.Info("schema not managed by the engine, skipped", map[string]any{"schema": c.name})
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	// The ledger may have been dropped or emptied along with its schema.
	e.store.Invalidate()
	return nil
}
