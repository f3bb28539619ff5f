// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/adjustment-engine/factory"
	"github.com/warp/adjustment-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	factory     *factory.CalculatorFactory
	adjustments map[generic.AdjustmentID]*generic.Adjustment
	byTarget    map[generic.Ref][]generic.AdjustmentID
	adjustables map[generic.AdjustableID]adjustableRecord
}

// adjustableRecord keeps the calculator in JSON form so that every load
// hands out a calculator owned by exactly one Adjustable.
type adjustableRecord struct {
	ID         generic.AdjustableID
	Kind       generic.AdjustableKind
	Calculator factory.CalculatorJSON
}

// NewMemory creates an empty store. A nil registry means the default one.
func NewMemory(reg *generic.Registry) *Memory {
	return &Memory{
		factory:     factory.NewCalculatorFactory(reg),
		adjustments: make(map[generic.AdjustmentID]*generic.Adjustment),
		byTarget:    make(map[generic.Ref][]generic.AdjustmentID),
		adjustables: make(map[generic.AdjustableID]adjustableRecord),
	}
}

// AppendAdjustment stores a copy of adj.
func (m *Memory) AppendAdjustment(_ context.Context, adj *generic.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(adj)
}

func (m *Memory) appendLocked(adj *generic.Adjustment) error {
	if _, exists := m.adjustments[adj.ID]; exists {
		return generic.ErrDuplicateAdjustment
	}
	m.adjustments[adj.ID] = adj.Clone()
	m.byTarget[adj.Target] = append(m.byTarget[adj.Target], adj.ID)
	return nil
}

// WriteAmount overwrites the stored amount. Nothing else is touched.
func (m *Memory) WriteAmount(_ context.Context, id generic.AdjustmentID, amount decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeAmountLocked(id, amount, at)
}

func (m *Memory) writeAmountLocked(id generic.AdjustmentID, amount decimal.Decimal, at time.Time) error {
	adj, ok := m.adjustments[id]
	if !ok {
		return generic.ErrAdjustmentNotFound
	}
	adj.Amount = amount
	adj.UpdatedAt = at
	return nil
}

func (m *Memory) GetAdjustment(_ context.Context, id generic.AdjustmentID) (*generic.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAdjustmentLocked(id)
}

func (m *Memory) getAdjustmentLocked(id generic.AdjustmentID) (*generic.Adjustment, error) {
	adj, ok := m.adjustments[id]
	if !ok {
		return nil, generic.ErrAdjustmentNotFound
	}
	return adj.Clone(), nil
}

func (m *Memory) LoadAdjustments(_ context.Context, target generic.Ref) ([]*generic.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadAdjustmentsLocked(target), nil
}

func (m *Memory) loadAdjustmentsLocked(target generic.Ref) []*generic.Adjustment {
	ids := m.byTarget[target]
	result := make([]*generic.Adjustment, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.adjustments[id].Clone())
	}
	return result
}

// SaveAdjustable validates and stores a, replacing any previous calculator.
func (m *Memory) SaveAdjustable(_ context.Context, a *generic.Adjustable) error {
	rec, err := m.toRecord(a)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustables[a.ID] = rec
	return nil
}

func (m *Memory) toRecord(a *generic.Adjustable) (adjustableRecord, error) {
	if err := generic.ValidateForSave(a); err != nil {
		return adjustableRecord{}, err
	}
	cj, err := m.factory.ToJSON(a.Calculator())
	if err != nil {
		return adjustableRecord{}, err
	}
	return adjustableRecord{ID: a.ID, Kind: a.Kind, Calculator: cj}, nil
}

func (m *Memory) LoadAdjustable(_ context.Context, id generic.AdjustableID) (*generic.Adjustable, error) {
	m.mu.RLock()
	rec, ok := m.adjustables[id]
	m.mu.RUnlock()
	if !ok {
		return nil, generic.ErrAdjustableNotFound
	}
	return m.fromRecord(rec)
}

func (m *Memory) fromRecord(rec adjustableRecord) (*generic.Adjustable, error) {
	calc, err := m.factory.FromJSON(rec.Calculator)
	if err != nil {
		return nil, err
	}
	a := generic.NewAdjustable(rec.ID, rec.Kind, m.factory.Registry)
	a.SetCalculator(calc)
	return a, nil
}

// DeleteAdjustable removes the adjustable; its calculator goes with it.
func (m *Memory) DeleteAdjustable(_ context.Context, id generic.AdjustableID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.adjustables[id]; !ok {
		return generic.ErrAdjustableNotFound
	}
	delete(m.adjustables, id)
	return nil
}

func (m *Memory) ListAdjustables(_ context.Context, kind generic.AdjustableKind) ([]*generic.Adjustable, error) {
	m.mu.RLock()
	records := make([]adjustableRecord, 0, len(m.adjustables))
	for _, rec := range m.adjustables {
		if kind == "" || rec.Kind == kind {
			records = append(records, rec)
		}
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	result := make([]*generic.Adjustable, 0, len(records))
	for _, rec := range records {
		a, err := m.fromRecord(rec)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory(reg *generic.Registry) *TxMemory {
	return &TxMemory{Memory: NewMemory(reg)}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm.Memory}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	adjustments := make(map[generic.AdjustmentID]*generic.Adjustment, len(tm.adjustments))
	for k, v := range tm.adjustments {
		adjustments[k] = v.Clone()
	}
	byTarget := make(map[generic.Ref][]generic.AdjustmentID, len(tm.byTarget))
	for k, v := range tm.byTarget {
		byTarget[k] = append([]generic.AdjustmentID(nil), v...)
	}
	adjustables := make(map[generic.AdjustableID]adjustableRecord, len(tm.adjustables))
	for k, v := range tm.adjustables {
		adjustables[k] = v
	}
	return memorySnapshot{adjustments: adjustments, byTarget: byTarget, adjustables: adjustables}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.adjustments = s.adjustments
	tm.byTarget = s.byTarget
	tm.adjustables = s.adjustables
}

type memorySnapshot struct {
	adjustments map[generic.AdjustmentID]*generic.Adjustment
	byTarget    map[generic.Ref][]generic.AdjustmentID
	adjustables map[generic.AdjustableID]adjustableRecord
}

// txMemoryView runs with the parent's lock already held.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) AppendAdjustment(_ context.Context, adj *generic.Adjustment) error {
	return tv.parent.appendLocked(adj)
}

func (tv *txMemoryView) WriteAmount(_ context.Context, id generic.AdjustmentID, amount decimal.Decimal, at time.Time) error {
	return tv.parent.writeAmountLocked(id, amount, at)
}

func (tv *txMemoryView) GetAdjustment(_ context.Context, id generic.AdjustmentID) (*generic.Adjustment, error) {
	return tv.parent.getAdjustmentLocked(id)
}

func (tv *txMemoryView) LoadAdjustments(_ context.Context, target generic.Ref) ([]*generic.Adjustment, error) {
	return tv.parent.loadAdjustmentsLocked(target), nil
}

func (tv *txMemoryView) SaveAdjustable(_ context.Context, a *generic.Adjustable) error {
	rec, err := tv.parent.toRecord(a)
	if err != nil {
		return err
	}
	tv.parent.adjustables[a.ID] = rec
	return nil
}

func (tv *txMemoryView) LoadAdjustable(_ context.Context, id generic.AdjustableID) (*generic.Adjustable, error) {
	rec, ok := tv.parent.adjustables[id]
	if !ok {
		return nil, generic.ErrAdjustableNotFound
	}
	return tv.parent.fromRecord(rec)
}

func (tv *txMemoryView) DeleteAdjustable(_ context.Context, id generic.AdjustableID) error {
	if _, ok := tv.parent.adjustables[id]; !ok {
		return generic.ErrAdjustableNotFound
	}
	delete(tv.parent.adjustables, id)
	return nil
}

func (tv *txMemoryView) ListAdjustables(_ context.Context, kind generic.AdjustableKind) ([]*generic.Adjustable, error) {
	var result []*generic.Adjustable
	for _, rec := range tv.parent.adjustables {
		if kind != "" && rec.Kind != kind {
			continue
		}
		a, err := tv.parent.fromRecord(rec)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
