// Package mods installs Steam Workshop mods into the server ini and tracks
// the requirements between them.
package mods

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/reedfamily/zomboidbot/internal/serverini"
	"github.com/reedfamily/zomboidbot/internal/workshop"
	"go.uber.org/zap"
)

// Server ini keys holding the mod lists.
const (
	KeyWorkshopItems = "WorkshopItems"
	KeyMods          = "Mods"
)

var (
	ErrInvalidID        = errors.New("workshop id must be numeric")
	ErrInvalidMod       = errors.New("mod does not exist on the workshop")
	ErrAlreadyInstalled = errors.New("mod is already installed")
	ErrHasDependents    = errors.New("mod is required by other mods")
)

// DependentsError lists the mods that block a removal.
type DependentsError struct {
	WorkshopID string
	Dependents []string
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("mod %s is required by %v", e.WorkshopID, e.Dependents)
}

func (e *DependentsError) Unwrap() error { return ErrHasDependents }

// Catalog is where mod metadata comes from.
type Catalog interface {
	ModURL(id string) string
	Validate(ctx context.Context, idOrURL string) (bool, error)
	Resolve(ctx context.Context, url string) (map[string]workshop.Mod, error)
}

type Manager struct {
	ini     *serverini.File
	catalog Catalog
	store   *Store
	log     *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	graph *Graph
}

func NewManager(ctx context.Context, ini *serverini.File, catalog Catalog, store *Store, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	installed, err := store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load mods: %w", err)
	}
	return &Manager{
		ini:     ini,
		catalog: catalog,
		store:   store,
		log:     log,
		now:     time.Now,
		graph:   NewGraph(installed...),
	}, nil
}

func (m *Manager) ModURL(id string) string {
	return m.catalog.ModURL(id)
}

func (m *Manager) IsInstalled(workshopID string) (bool, error) {
	items, err := m.ini.List(KeyWorkshopItems)
	if err != nil {
		return false, err
	}
	return slices.Contains(items, workshopID), nil
}

// Check makes sure id names an existing workshop item that is not
// installed yet.
func (m *Manager) Check(ctx context.Context, id string) error {
	if !workshop.IsWorkshopID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	ok, err := m.catalog.Validate(ctx, id)
	if err != nil {
		return fmt.Errorf("validate mod %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidMod, id)
	}
	installed, err := m.IsInstalled(id)
	if err != nil {
		return err
	}
	if installed {
		return fmt.Errorf("%w: %s", ErrAlreadyInstalled, id)
	}
	return nil
}

// Resolve fetches the mod and everything it requires.
func (m *Manager) Resolve(ctx context.Context, id string) (map[string]workshop.Mod, error) {
	return m.catalog.Resolve(ctx, m.catalog.ModURL(id))
}

// Install adds the mods that are not installed yet in front of the ini
// lists, requirements first, and records them. The ini is snapshotted
// before it is touched. It returns the mods that were added.
func (m *Manager) Install(ctx context.Context, mods map[string]workshop.Mod) ([]workshop.Mod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered, err := InstallOrder(mods)
	if err != nil {
		return nil, err
	}
	items, err := m.ini.List(KeyWorkshopItems)
	if err != nil {
		return nil, err
	}

	var added []workshop.Mod
	var newItems, newModIDs []string
	for _, mod := range ordered {
		if mod.WorkshopID == "" || slices.Contains(items, mod.WorkshopID) {
			continue
		}
		added = append(added, mod)
		newItems = append(newItems, mod.WorkshopID)
		newModIDs = append(newModIDs, mod.ModIDs...)
	}
	if len(added) == 0 {
		return nil, nil
	}

	backup, err := m.ini.Snapshot(m.now())
	if err != nil {
		return nil, err
	}
	m.log.Info("server ini snapshot", zap.String("path", backup))

	if err := m.ini.Update(KeyWorkshopItems, func(cur []string) []string {
		return append(slices.Clone(newItems), cur...)
	}); err != nil {
		return nil, err
	}
	if err := m.ini.Update(KeyMods, func(cur []string) []string {
		var prefix []string
		for _, id := range newModIDs {
			if !slices.Contains(cur, id) && !slices.Contains(prefix, id) {
				prefix = append(prefix, id)
			}
		}
		return append(prefix, cur...)
	}); err != nil {
		return nil, err
	}

	if err := m.store.Save(ctx, added, m.now()); err != nil {
		return nil, err
	}
	for _, mod := range added {
		m.graph.Add(mod)
	}
	m.log.Info("mods installed", zap.Strings("workshop_ids", newItems), zap.Strings("mod_ids", newModIDs))
	return added, nil
}

func (m *Manager) Dependents(identifier string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.Dependents(identifier)
}

func (m *Manager) Dependencies(identifier string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.Dependencies(identifier)
}

// Lookup finds an installed mod by workshop id or name.
func (m *Manager) Lookup(identifier string) (workshop.Mod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.Lookup(identifier)
}

// Installed lists the mods recorded as installed.
func (m *Manager) Installed(ctx context.Context) ([]workshop.Mod, error) {
	return m.store.All(ctx)
}

// Remove takes a mod out of the ini lists. A mod other mods require is only
// removed when force is set.
func (m *Manager) Remove(ctx context.Context, identifier string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mod, err := m.graph.Lookup(identifier)
	if err != nil {
		return err
	}
	dependents, err := m.graph.Dependents(mod.WorkshopID)
	if err != nil {
		return err
	}
	if len(dependents) > 0 && !force {
		return &DependentsError{WorkshopID: mod.WorkshopID, Dependents: dependents}
	}

	if _, err := m.ini.Snapshot(m.now()); err != nil {
		return err
	}
	if err := m.ini.Update(KeyWorkshopItems, func(cur []string) []string {
		return slices.DeleteFunc(cur, func(s string) bool { return s == mod.WorkshopID })
	}); err != nil {
		return err
	}
	if err := m.ini.Update(KeyMods, func(cur []string) []string {
		return slices.DeleteFunc(cur, func(s string) bool { return slices.Contains(mod.ModIDs, s) })
	}); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, mod.WorkshopID); err != nil {
		return err
	}
	m.graph.Remove(mod.WorkshopID)
	m.log.Info("mod removed", zap.String("workshop_id", mod.WorkshopID), zap.Bool("force", force))
	return nil
}
