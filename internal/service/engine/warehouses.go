package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository"
	"github.com/mamadbah2/stockcount/internal/service/counting"
)

// Warehouses lists the warehouses of the user. The default warehouse is always present.
func (e *Engine) Warehouses(ctx context.Context) ([]models.Warehouse, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var list []models.Warehouse
	err := e.remoteCall(ctx, "warehouses.list", func(ctx context.Context) error {
		var err error
		list, err = e.deps.Remote.ListWarehouses(ctx, e.UserID())
		return err
	})
	if err != nil {
		return nil, err
	}
	hasDefault := false
	for _, w := range list {
		if w.IsDefault() {
			hasDefault = true
			break
		}
	}
	if !hasDefault {
		list = append([]models.Warehouse{{ID: models.DefaultWarehouseID, Name: e.opts.DefaultWarehouseName}}, list...)
	}

	known := make(map[string]models.Warehouse, len(list))
	for _, w := range list {
		known[w.ID] = w
	}
	e.mu.Lock()
	e.known = known
	e.mu.Unlock()
	return list, nil
}

func (e *Engine) rememberWarehouse(w models.Warehouse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.known == nil {
		e.known = make(map[string]models.Warehouse)
	}
	e.known[w.ID] = w
}

func (e *Engine) forgetWarehouse(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.known, id)
}

// offlineWarehouse resolves id without the remote store: from the last listed warehouses,
// else from a local mirror of its counting list.
func (e *Engine) offlineWarehouse(ctx context.Context, id string) (models.Warehouse, bool) {
	if id == models.DefaultWarehouseID {
		return models.Warehouse{ID: id, Name: e.opts.DefaultWarehouseName}, true
	}
	e.mu.Lock()
	w, ok := e.known[id]
	e.mu.Unlock()
	if ok {
		return w, true
	}
	if _, ok, err := e.deps.Local.LoadMirror(ctx, counting.MirrorKey(e.UserID(), id)); err == nil && ok {
		return models.Warehouse{ID: id, Name: id}, true
	}
	return models.Warehouse{}, false
}

func (e *Engine) findWarehouse(ctx context.Context, id string) (models.Warehouse, error) {
	list, err := e.Warehouses(ctx)
	if err != nil {
		return models.Warehouse{}, err
	}
	for _, w := range list {
		if w.ID == id {
			return w, nil
		}
	}
	return models.Warehouse{}, models.NotFound("warehouse %s does not exist", id)
}

// CreateWarehouse adds a warehouse with a generated id.
func (e *Engine) CreateWarehouse(ctx context.Context, name string) (models.Warehouse, error) {
	if err := e.ready(); err != nil {
		return models.Warehouse{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Warehouse{}, models.InvalidInput("warehouse name must not be empty")
	}
	w := models.Warehouse{ID: uuid.NewString(), Name: name}
	err := e.remoteCall(ctx, "warehouses.put", func(ctx context.Context) error {
		return e.deps.Remote.PutWarehouse(ctx, e.UserID(), w)
	})
	if err != nil {
		return models.Warehouse{}, err
	}
	e.rememberWarehouse(w)
	e.logger.Info("warehouse created", zap.String("warehouse", w.ID), zap.String("name", name))
	return w, nil
}

// RenameWarehouse changes the display name of a warehouse.
func (e *Engine) RenameWarehouse(ctx context.Context, id, name string) (models.Warehouse, error) {
	if err := e.ready(); err != nil {
		return models.Warehouse{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Warehouse{}, models.InvalidInput("warehouse name must not be empty")
	}
	w, err := e.findWarehouse(ctx, id)
	if err != nil {
		return models.Warehouse{}, err
	}
	w.Name = name
	err = e.remoteCall(ctx, "warehouses.put", func(ctx context.Context) error {
		return e.deps.Remote.PutWarehouse(ctx, e.UserID(), w)
	})
	if err != nil {
		return models.Warehouse{}, err
	}
	e.rememberWarehouse(w)
	return w, nil
}

// DeleteWarehouse removes a warehouse together with its counting list. The default
// warehouse cannot be deleted. Deleting the current warehouse switches to the default one.
func (e *Engine) DeleteWarehouse(ctx context.Context, id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if id == models.DefaultWarehouseID {
		return models.ErrDefaultWarehouse
	}
	if _, err := e.findWarehouse(ctx, id); err != nil {
		return err
	}

	if e.counting.WarehouseID() == id {
		if _, err := e.SelectWarehouse(ctx, models.DefaultWarehouseID); err != nil && !errors.Is(err, models.ErrUnavailable) {
			return err
		}
	}

	userID := e.UserID()
	err := e.remoteCall(ctx, "warehouses.delete", func(ctx context.Context) error {
		items, err := e.deps.Remote.ListItems(ctx, userID, id)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			ops := make([]models.ItemOp, 0, len(items))
			for _, item := range items {
				ops = append(ops, models.DeleteOp(item.Barcode))
			}
			if err := e.deps.Remote.BatchItems(ctx, userID, id, ops); err != nil {
				return err
			}
		}
		return e.deps.Remote.DeleteWarehouse(ctx, userID, id)
	})
	if err != nil {
		return err
	}
	e.forgetWarehouse(id)
	key := counting.MirrorKey(userID, id)
	e.persister.Discard(key)
	if err := e.deps.Local.DeleteMirror(ctx, key); err != nil {
		e.logger.Warn("local mirror of deleted warehouse kept", zap.String("warehouse", id), zap.Error(err))
	}
	e.logger.Info("warehouse deleted", zap.String("warehouse", id))
	return nil
}

// SelectWarehouse makes id the current warehouse and remembers the choice. The previous
// list is detached first and its pending confirmation discarded. When the remote store is
// unreachable, a warehouse this session has listed before or has a local mirror of is
// still selected, working on that mirror, and the returned error wraps ErrUnavailable.
// Any other id is refused with ErrUnavailable.
func (e *Engine) SelectWarehouse(ctx context.Context, id string) (models.Warehouse, error) {
	if err := e.ready(); err != nil {
		return models.Warehouse{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Warehouse{}, models.InvalidInput("warehouse id must not be empty")
	}

	w, err := e.findWarehouse(ctx, id)
	if errors.Is(err, models.ErrUnavailable) {
		known, ok := e.offlineWarehouse(ctx, id)
		if !ok {
			return models.Warehouse{}, err
		}
		w = known
	} else if err != nil {
		return models.Warehouse{}, err
	}

	e.dedup.Reset()
	// The mirror of the list being left must be on disk before it can be restored.
	if err := e.persister.Flush(); err != nil {
		e.logger.Warn("local mirror not flushed", zap.Error(err))
	}
	attachErr := e.counting.Attach(ctx, id)
	if attachErr != nil && !errors.Is(attachErr, models.ErrUnavailable) {
		return models.Warehouse{}, attachErr
	}
	e.setPref(ctx, repository.PrefLastWarehouse, id)
	e.logger.Info("warehouse selected", zap.String("warehouse", id), zap.Bool("online", attachErr == nil))
	return w, attachErr
}
