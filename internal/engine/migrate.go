package engine

import (
	"context"
	"fmt"

	"github.com/mirajehossain/evolvex/internal/loader"
	"github.com/mirajehossain/evolvex/internal/metadata"
	"github.com/mirajehossain/evolvex/internal/version"
)

// Migrate brings the database to the target version by applying outstanding
// scripts in order, one transaction per script.
func (e *Engine) Migrate(ctx context.Context) error {
	if err := e.initialize(ctx); err != nil {
		return err
	}
	scripts, err := e.loadScripts()
	if err != nil {
		return err
	}

	if err := e.validate(ctx, scripts, ModeStrict); err != nil {
		if !IsValidationError(err) || !e.cfg.MustEraseOnValidationError {
			return err
		}
		e.log.Warn("validation failed, erasing before retry", map[string]any{
			"error": err.Error(),
		})
		if err := e.erase(ctx); err != nil {
			return err
		}
	}

	if err := e.manageSchemas(ctx); err != nil {
		return err
	}

	applied, err := e.store.ListApplied(ctx)
	if err != nil {
		return err
	}
	lastApplied := version.Zero
	if len(applied) > 0 {
		lastApplied = *applied[len(applied)-1].Version
	}

	plan := planScripts(scripts, lastApplied, e.target)
	final := lastApplied
	for _, sc := range plan {
		if err := e.applyScript(ctx, sc); err != nil {
			return err
		}
		final = sc.Version
	}

	if e.nbMigration == 0 {
		e.log.Info("Nothing to migrate.", nil)
	} else {
		e.log.Info(fmt.Sprintf("Database migrated to version %s. %d migration(s) applied.",
			final, e.nbMigration), nil)
	}
	return nil
}

// planScripts selects the scripts to run: strictly above the last applied
// version, capped at the target. Scripts arrive version-ascending from the
// loader, so the result preserves that order.
func planScripts(scripts []*loader.Script, lastApplied, target version.Version) []*loader.Script {
	var out []*loader.Script
	for _, sc := range scripts {
		if sc.Version.Compare(lastApplied) <= 0 {
			continue
		}
		if sc.Version.Compare(target) > 0 {
			break
		}
		out = append(out, sc)
	}
	return out
}

// applyScript executes one script and its ledger write inside a single
// transaction. On failure the transaction is rolled back and a success=false
// row is recorded in its own statement so the failure survives the rollback.
func (e *Engine) applyScript(ctx context.Context, sc *loader.Script) error {
	body, err := sc.Body()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMigrationFailed, sc.Name, err)
	}
	sum, err := sc.Checksum(e.replacer)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMigrationFailed, sc.Name, err)
	}
	batch := e.replacer.Apply(body)
	ver := sc.Version

	tx, err := e.helper.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMigrationFailed, sc.Name, err)
	}
	apply := func() error {
		if _, err := tx.ExecContext(ctx, batch); err != nil {
			return err
		}
		if _, err := e.store.Save(ctx, tx, metadata.Entry{
			Type:        metadata.TypeMigration,
			Version:     &ver,
			Description: sc.Description,
			Name:        sc.Name,
			Checksum:    sum,
			Success:     true,
		}); err != nil {
			return err
		}
		return tx.Commit()
	}
	if err := apply(); err != nil {
		_ = tx.Rollback()
		if _, serr := e.store.Save(ctx, e.db, metadata.Entry{
			Type:        metadata.TypeMigration,
			Version:     &ver,
			Description: sc.Description,
			Name:        sc.Name,
			Checksum:    sum,
			Success:     false,
		}); serr != nil {
			e.log.Warn("failed to record failed migration", map[string]any{
				"script": sc.Name,
				"error":  serr.Error(),
			})
		}
		return fmt.Errorf("%w: %s: %v", ErrMigrationFailed, sc.Name, err)
	}

	e.nbMigration++
	e.log.Info("applied migration", map[string]any{
		"version": ver.String(),
		"script":  sc.Name,
	})
	return nil
}

// manageSchemas creates missing schemas and records the consent markers the
// Erase command later honors: NewSchema for schemas the engine created,
// EmptySchema for schemas it first observed empty. Emptiness is judged before
// the ledger table is ensured, since creating the ledger would make its host
// schema non-empty.
func (e *Engine) manageSchemas(ctx context.Context) error {
	type observation struct {
		name    string
		created bool
	}
	var observed []observation
	for _, name := range e.schemasToConsider() {
		exists, err := e.helper.SchemaExists(ctx, name)
		if err != nil {
			return err
		}
		if !exists {
			tx, err := e.helper.Begin(ctx)
			if err != nil {
				return err
			}
			if err := e.helper.CreateSchema(ctx, tx, name); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("create schema %s: %w", name, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("create schema %s: %w", name, err)
			}
			e.log.Info("created schema", map[string]any{"schema": name})
			observed = append(observed, observation{name: name, created: true})
			continue
		}
		empty, err := e.helper.SchemaEmpty(ctx, name)
		if err != nil {
			return err
		}
		if empty {
			observed = append(observed, observation{name: name})
		}
	}

	if err := e.store.Ensure(ctx); err != nil {
		return err
	}
	for _, o := range observed {
		entry := metadata.Entry{Type: metadata.TypeEmptySchema, Description: "empty schema", Name: o.name, Success: true}
		hasMarker := e.store.CanEraseSchema
		if o.created {
			entry = metadata.Entry{Type: metadata.TypeNewSchema, Description: "create schema", Name: o.name, Success: true}
			hasMarker = e.store.CanDropSchema
		}
		marked, err := hasMarker(ctx, o.name)
		if err != nil {
			return err
		}
		if marked {
			continue
		}
		if _, err := e.store.Save(ctx, e.db, entry); err != nil {
			return err
		}
	}
	return nil
}
