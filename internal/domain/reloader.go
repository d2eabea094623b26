package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	m "nest.dev/pkg/nest/internal/model"
)

// Refresh reloads the source unit behind mod when its file changed. It
// returns a *ReloadError while the unit stays broken. Frozen records are
// never checked.
func (r *Registry) Refresh(ctx context.Context, mod *Module) error {
	unit := mod.unit
	if unit == nil || mod.source.Frozen || unit.source.Frozen {
		return nil
	}

	now := r.opts.Clock()

	if r.opts.ReloadInterval <= 0 || unit.checked.IsZero() || now.Sub(unit.checked) >= r.opts.ReloadInterval {
		unit.checked = now

		if err := r.reloadUnit(ctx, unit); err != nil {
			unit.broken = err
		}
	}

	if unit.broken == nil {
		return nil
	}

	return &ReloadError{Module: mod.String(), Path: unit.source.Path, Err: unit.broken}
}

// reloadUnit compares modification time, then content hash, and re-registers
// the unit when its content changed. On failure the previous records stay
// bound and the new fingerprint is kept so an unchanged file is not retried.
func (r *Registry) reloadUnit(ctx context.Context, unit *unitState) error {
	path := unit.source.Path

	info, err := r.fs.FileInfo(path)
	if err != nil {
		if unit.broken == nil {
			slog.Error("source unit disappeared", "path", path, "error", err)
		}

		// A file that reappears is always reloaded.
		unit.source.ModTime = time.Time{}
		unit.source.Hash = ""

		return err
	}

	if info.ModTime().Equal(unit.source.ModTime) {
		return unit.broken
	}

	hash, err := r.fs.HashFile(path)
	if err != nil {
		return err
	}

	if hash == unit.source.Hash {
		unit.source.ModTime = info.ModTime()

		return unit.broken
	}

	slog.Info("source unit changed, reloading", "path", path)

	fail := func(err error) error {
		unit.source.ModTime = info.ModTime()
		unit.source.Hash = hash

		slog.Error("reload failed, keeping previous implementation", "path", path, "error", err)

		return err
	}

	fresh, err := r.loader.LoadUnit(ctx, m.Source{
		Path:      path,
		Namespace: unit.source.Namespace,
	})
	if err != nil {
		return fail(err)
	}

	if err := r.registerUnit(fresh, newPass()); err != nil {
		return fail(err)
	}

	return nil
}

// logSignatureChange logs a unified diff when a record's signature changes
// on reload or override.
func logSignatureChange(name string, before, after m.Signature) {
	if before.Result == nil || before.String() == after.String() {
		return
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        before.Lines(),
		B:        after.Lines(),
		FromFile: name + " (before)",
		ToFile:   name + " (after)",
		Context:  1,
	})
	if err != nil {
		slog.Debug("signature diff failed", "module", name, "error", err)
		return
	}

	slog.Info("module signature changed", "module", name, "diff", diff)
}
