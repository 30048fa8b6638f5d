// Package wizard chains the step hooks into the linear
// File → Schema → AID → Buckets/Params → Result → Export flow.
//
// Each step is mounted in its own task scope nested in its predecessor's.
// Loading a file unmounts everything downstream; changing a selection
// re-keys the slots that depend on it.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/temirov/anonwiz/internal/computed"
	"github.com/temirov/anonwiz/internal/model"
	"github.com/temirov/anonwiz/internal/task"
	"github.com/temirov/anonwiz/steps"
)

var (
	// ErrStepInactive means a step was used before its predecessor produced a value.
	ErrStepInactive = errors.New("wizard step is not active")
	// ErrClosed means the wizard has been closed.
	ErrClosed = errors.New("wizard closed")
)

const (
	errFormatInactive = "%w: %s requires %s"
)

// Steps is the hook surface the wizard drives.
type Steps interface {
	LoadSchema(ctx context.Context, path string) (model.TableSchema, error)
	HasMissingAID(ctx context.Context, schema model.TableSchema, aidColumn string) (bool, error)
	Anonymize(ctx context.Context, query steps.Query) (model.AnonymizedResult, error)
	Export(ctx context.Context, query steps.Query) (steps.ExportOutcome, error)
}

// Selection is the user input of the bucket and parameter steps.
type Selection struct {
	Buckets    []model.BucketColumn
	CountInput model.CountInput
	Params     model.AnonymizationParams
}

// DefaultSelection has no buckets, counts rows and uses the default parameters.
func DefaultSelection() Selection {
	return Selection{CountInput: model.CountRows, Params: model.DefaultAnonymizationParams()}
}

type fileStage struct {
	scope  *task.Scope
	path   string
	schema *computed.Slot[model.TableSchema]
}

type aidStage struct {
	scope   *task.Scope
	schema  model.TableSchema
	aid     string
	missing *computed.Slot[bool]
}

type queryStage struct {
	scope     *task.Scope
	selection Selection
	query     steps.Query
	result    *computed.Slot[model.AnonymizedResult]
	cache     *computed.Cache[model.AnonymizedResult]
}

// Wizard owns the mounted steps. All methods are safe for concurrent use.
type Wizard struct {
	steps  Steps
	logger *zap.Logger
	root   *task.Scope

	mu     sync.Mutex
	file   *fileStage
	aid    *aidStage
	query  *queryStage
	closed bool
}

func New(parent context.Context, hooks Steps, logger *zap.Logger) *Wizard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wizard{steps: hooks, logger: logger, root: task.NewScope(parent)}
}

// Open loads path, unmounting every step mounted for a previous file.
// Selecting the same path again reloads it.
func (w *Wizard) Open(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.unmountFileLocked()

	scope := w.root.Child()
	stage := &fileStage{
		scope:  scope,
		path:   path,
		schema: computed.NewSlot[model.TableSchema](scope, "schema", w.logger),
	}
	w.file = stage
	w.logger.Debug("step mounted", zap.Stringer("step", StepFile), zap.String("file", path))

	stage.schema.Update(path, func(ctx context.Context) (model.TableSchema, error) {
		return w.steps.LoadSchema(ctx, path)
	})
	return nil
}

// Schema returns the state of the schema step.
func (w *Wizard) Schema() computed.Data[model.TableSchema] {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return computed.Data[model.TableSchema]{}
	}
	return w.file.schema.Get()
}

// WaitSchema blocks until the schema step settles.
func (w *Wizard) WaitSchema(ctx context.Context) (computed.Data[model.TableSchema], error) {
	w.mu.Lock()
	if w.file == nil {
		w.mu.Unlock()
		return computed.Data[model.TableSchema]{}, fmt.Errorf(errFormatInactive, ErrStepInactive, StepSchema, "an opened file")
	}
	slot := w.file.schema
	w.mu.Unlock()
	return slot.Wait(ctx)
}

// SelectAID chooses the AID column; "" selects row-index mode. The schema
// must have loaded.
func (w *Wizard) SelectAID(aidColumn string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.mountAIDLocked(); err != nil {
		return err
	}
	if aidColumn != "" {
		if _, ok := w.aid.schema.Column(aidColumn); !ok {
			return fmt.Errorf("aid column %q: %w", aidColumn, steps.ErrUnknownColumn)
		}
	}
	stage := w.aid
	stage.aid = aidColumn
	schema := stage.schema
	key, err := computed.KeyOf(schema.SourceFile, schema.Salt, aidColumn)
	if err != nil {
		return err
	}
	stage.missing.Update(key, func(ctx context.Context) (bool, error) {
		return w.steps.HasMissingAID(ctx, schema, aidColumn)
	})
	if w.query != nil {
		w.refreshLocked()
	}
	return nil
}

// MissingAID returns the state of the missing-AID check.
func (w *Wizard) MissingAID() computed.Data[bool] {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.aid == nil {
		return computed.Data[bool]{}
	}
	return w.aid.missing.Get()
}

// WaitMissingAID blocks until the missing-AID check settles.
func (w *Wizard) WaitMissingAID(ctx context.Context) (computed.Data[bool], error) {
	w.mu.Lock()
	if w.aid == nil {
		w.mu.Unlock()
		return computed.Data[bool]{}, fmt.Errorf(errFormatInactive, ErrStepInactive, StepAID, "a loaded schema")
	}
	slot := w.aid.missing
	w.mu.Unlock()
	return slot.Wait(ctx)
}

// Configure replaces the bucket, count and parameter selection in one step.
func (w *Wizard) Configure(selection Selection) error {
	return w.updateSelection(func(current *Selection) { *current = selection })
}

// SetBuckets replaces the bucket columns.
func (w *Wizard) SetBuckets(buckets []model.BucketColumn) error {
	return w.updateSelection(func(current *Selection) { current.Buckets = buckets })
}

// SetCountInput replaces what the anonymized aggregate counts.
func (w *Wizard) SetCountInput(countInput model.CountInput) error {
	return w.updateSelection(func(current *Selection) { current.CountInput = countInput })
}

// SetParams replaces the anonymization parameters.
func (w *Wizard) SetParams(params model.AnonymizationParams) error {
	return w.updateSelection(func(current *Selection) { current.Params = params })
}

func (w *Wizard) updateSelection(apply func(*Selection)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.aid == nil {
		return fmt.Errorf(errFormatInactive, ErrStepInactive, StepBuckets, "a selected AID column")
	}
	if w.query == nil {
		w.mountQueryLocked()
	}
	selection := w.query.selection
	apply(&selection)
	selection.Buckets = append([]model.BucketColumn(nil), selection.Buckets...)
	w.query.selection = selection
	w.refreshLocked()
	return nil
}

// Result returns the state of the anonymized query.
func (w *Wizard) Result() computed.Data[model.AnonymizedResult] {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.query == nil {
		return computed.Data[model.AnonymizedResult]{}
	}
	return w.query.result.Get()
}

// CachedResult returns the last completed result of the mounted query step,
// which stays available while a newer query is in progress.
func (w *Wizard) CachedResult() (model.AnonymizedResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.query == nil {
		return model.AnonymizedResult{}, false
	}
	return w.query.cache.Value(), w.query.cache.Seen()
}

// WaitResult blocks until the anonymized query settles.
func (w *Wizard) WaitResult(ctx context.Context) (computed.Data[model.AnonymizedResult], error) {
	w.mu.Lock()
	if w.query == nil {
		w.mu.Unlock()
		return computed.Data[model.AnonymizedResult]{}, fmt.Errorf(errFormatInactive, ErrStepInactive, StepResult, "a bucket selection")
	}
	slot := w.query.result
	w.mu.Unlock()
	return slot.Wait(ctx)
}

// Export starts exporting the current query once its result has completed.
// The task belongs to the query step and is cancelled when that step
// unmounts.
func (w *Wizard) Export() (*task.Task[steps.ExportOutcome], error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	if w.query == nil {
		return nil, fmt.Errorf(errFormatInactive, ErrStepInactive, StepExport, "a bucket selection")
	}
	if w.query.result.Get().State != computed.Completed {
		return nil, fmt.Errorf(errFormatInactive, ErrStepInactive, StepExport, "a completed result")
	}
	query := w.query.query
	w.logger.Debug("export started", zap.String("file", query.Schema.SourceFile))
	return task.Go(w.query.scope, func(ctx context.Context) (steps.ExportOutcome, error) {
		return w.steps.Export(ctx, query)
	}), nil
}

// Step reports the furthest active step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.query != nil && w.query.result.Get().State == computed.Completed:
		return StepResult
	case w.query != nil:
		return StepBuckets
	case w.aid != nil:
		return StepAID
	case w.file != nil && w.file.schema.Get().State == computed.Completed:
		return StepSchema
	default:
		return StepFile
	}
}

// Close unmounts every step and cancels all their work.
func (w *Wizard) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.file, w.aid, w.query = nil, nil, nil
	w.mu.Unlock()
	w.root.Close()
}

func (w *Wizard) unmountFileLocked() {
	if w.file == nil {
		return
	}
	w.logger.Debug("step unmounted", zap.Stringer("step", StepFile), zap.String("file", w.file.path))
	w.file.scope.Close()
	w.file, w.aid, w.query = nil, nil, nil
}

func (w *Wizard) mountAIDLocked() error {
	if w.aid != nil {
		return nil
	}
	if w.file == nil {
		return fmt.Errorf(errFormatInactive, ErrStepInactive, StepAID, "an opened file")
	}
	schema, ok := w.file.schema.Get().Get()
	if !ok {
		return fmt.Errorf(errFormatInactive, ErrStepInactive, StepAID, "a loaded schema")
	}
	scope := w.file.scope.Child()
	w.aid = &aidStage{
		scope:   scope,
		schema:  schema,
		missing: computed.NewSlot[bool](scope, "missing_aid", w.logger),
	}
	w.logger.Debug("step mounted", zap.Stringer("step", StepAID))
	return nil
}

func (w *Wizard) mountQueryLocked() {
	scope := w.aid.scope.Child()
	result := computed.NewSlot[model.AnonymizedResult](scope, "result", w.logger)
	cache, stop := computed.Cached(result, model.AnonymizedResult{})
	scope.OnClose(stop)
	w.query = &queryStage{
		scope:     scope,
		selection: DefaultSelection(),
		result:    result,
		cache:     cache,
	}
	w.logger.Debug("step mounted", zap.Stringer("step", StepBuckets))
}

// refreshLocked re-keys the result slot from the current upstream values.
// Invalid selections fail the slot without reaching the anonymizer.
func (w *Wizard) refreshLocked() {
	stage := w.query
	selection := stage.selection
	query := steps.Query{
		Schema:     w.aid.schema,
		AidColumn:  w.aid.aid,
		Buckets:    selection.Buckets,
		CountInput: selection.CountInput,
		Params:     selection.Params,
	}
	stage.query = query
	key, err := computed.KeyOf(query.Schema.SourceFile, query.Schema.Salt, query.AidColumn, query.Buckets, query.CountInput, query.Params)
	if err != nil {
		stage.result.Reject(err.Error(), err.Error())
		return
	}
	if err := query.Validate(); err != nil {
		stage.result.Reject(key, err.Error())
		return
	}
	stage.result.Update(key, func(ctx context.Context) (model.AnonymizedResult, error) {
		return w.steps.Anonymize(ctx, query)
	})
}
