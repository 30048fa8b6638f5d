package wizard_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/temirov/anonwiz/internal/computed"
	"github.com/temirov/anonwiz/internal/gateway"
	"github.com/temirov/anonwiz/internal/model"
	"github.com/temirov/anonwiz/internal/task"
	"github.com/temirov/anonwiz/internal/wizard"
	"github.com/temirov/anonwiz/steps"
)

const testTimeout = 2 * time.Second

// scriptedSteps answers schema loads immediately and holds every anonymize
// call until the test releases it.
type scriptedSteps struct {
	mu         sync.Mutex
	schemas    map[string]model.TableSchema
	missing    map[string]bool
	anonymize  chan *pendingQuery
	hold       bool
	cancelled  chan steps.Query
	exportGate chan struct{}
}

type pendingQuery struct {
	query   steps.Query
	release chan model.AnonymizedResult
}

func newScriptedSteps() *scriptedSteps {
	return &scriptedSteps{
		schemas: map[string]model.TableSchema{
			"/data/sales.csv":   testSchema("/data/sales.csv"),
			"/data/returns.csv": testSchema("/data/returns.csv"),
		},
		missing:   map[string]bool{"id": true},
		anonymize: make(chan *pendingQuery, 16),
		cancelled: make(chan steps.Query, 16),
	}
}

func testSchema(path string) model.TableSchema {
	return model.TableSchema{
		SourceFile: path,
		Salt:       "salt-" + path,
		Columns: []model.TableColumn{
			{Name: "id", Type: model.ColumnInteger},
			{Name: "state", Type: model.ColumnText},
			{Name: "age", Type: model.ColumnInteger},
		},
	}
}

func (s *scriptedSteps) LoadSchema(_ context.Context, path string) (model.TableSchema, error) {
	schema, ok := s.schemas[path]
	if !ok {
		return model.TableSchema{}, errors.New("file not found")
	}
	return schema, nil
}

func (s *scriptedSteps) HasMissingAID(_ context.Context, _ model.TableSchema, aidColumn string) (bool, error) {
	return s.missing[aidColumn], nil
}

func (s *scriptedSteps) Anonymize(ctx context.Context, query steps.Query) (model.AnonymizedResult, error) {
	pending := &pendingQuery{query: query, release: make(chan model.AnonymizedResult, 1)}
	s.anonymize <- pending
	select {
	case result := <-pending.release:
		return result, nil
	case <-ctx.Done():
		s.cancelled <- query
		return model.AnonymizedResult{}, errors.Join(task.ErrAborted, ctx.Err())
	}
}

func (s *scriptedSteps) Export(ctx context.Context, query steps.Query) (steps.ExportOutcome, error) {
	if s.exportGate != nil {
		select {
		case <-s.exportGate:
		case <-ctx.Done():
			return steps.ExportOutcome{}, errors.Join(task.ErrAborted, ctx.Err())
		}
	}
	return steps.ExportOutcome{Path: steps.DefaultExportPath(query.Schema.SourceFile)}, nil
}

func (s *scriptedSteps) nextQuery(t *testing.T) *pendingQuery {
	t.Helper()
	select {
	case pending := <-s.anonymize:
		return pending
	case <-time.After(testTimeout):
		t.Fatalf("anonymize was not called")
		return nil
	}
}

func resultWithCount(count int64) model.AnonymizedResult {
	return model.AnonymizedResult{Rows: []model.ResultRow{{Count: count}}}
}

func openWithAID(t *testing.T, w *wizard.Wizard, path, aid string) {
	t.Helper()
	if err := w.Open(path); err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if data, err := w.WaitSchema(ctx); err != nil || data.State != computed.Completed {
		t.Fatalf("schema did not load: %+v, %v", data, err)
	}
	if err := w.SelectAID(aid); err != nil {
		t.Fatalf("select aid: %v", err)
	}
}

func waitResult(t *testing.T, w *wizard.Wizard) computed.Data[model.AnonymizedResult] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	data, err := w.WaitResult(ctx)
	if err != nil {
		t.Fatalf("wait result: %v", err)
	}
	return data
}

func TestStepsActivateInOrder(t *testing.T) {
	hooks := newScriptedSteps()
	w := wizard.New(context.Background(), hooks, nil)
	defer w.Close()

	if w.Step() != wizard.StepFile {
		t.Fatalf("expected file step, got %s", w.Step())
	}
	if err := w.SelectAID("id"); !errors.Is(err, wizard.ErrStepInactive) {
		t.Fatalf("expected inactive aid step, got %v", err)
	}
	if err := w.SetParams(model.DefaultAnonymizationParams()); !errors.Is(err, wizard.ErrStepInactive) {
		t.Fatalf("expected inactive bucket step, got %v", err)
	}
	if _, err := w.Export(); !errors.Is(err, wizard.ErrStepInactive) {
		t.Fatalf("expected inactive export, got %v", err)
	}

	openWithAID(t, w, "/data/sales.csv", "id")
	if w.Step() != wizard.StepAID {
		t.Fatalf("expected aid step, got %s", w.Step())
	}
	if schema := w.Schema(); schema.State != computed.Completed || schema.Value.SourceFile != "/data/sales.csv" {
		t.Fatalf("unexpected schema step %+v", schema)
	}
	if err := w.SelectAID("ghost"); !errors.Is(err, steps.ErrUnknownColumn) {
		t.Fatalf("expected unknown aid column, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	missing, err := w.WaitMissingAID(ctx)
	if err != nil || !missing.Value {
		t.Fatalf("expected missing values for id, got %+v, %v", missing, err)
	}
	if w.MissingAID() != missing {
		t.Fatalf("expected missing-aid state %+v, got %+v", missing, w.MissingAID())
	}

	if err := w.Configure(wizard.DefaultSelection()); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if w.Step() != wizard.StepBuckets {
		t.Fatalf("expected bucket step, got %s", w.Step())
	}
	hooks.nextQuery(t).release <- resultWithCount(7)
	if data := waitResult(t, w); data.State != computed.Completed {
		t.Fatalf("expected completed result, got %+v", data)
	}
	if w.Step() != wizard.StepResult {
		t.Fatalf("expected result step, got %s", w.Step())
	}
}

func TestSchemaFailureBlocksDownstream(t *testing.T) {
	w := wizard.New(context.Background(), newScriptedSteps(), nil)
	defer w.Close()

	if err := w.Open("/data/missing.csv"); err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	data, err := w.WaitSchema(ctx)
	if err != nil || data.State != computed.Failed || data.Err == "" {
		t.Fatalf("expected failed schema, got %+v, %v", data, err)
	}
	if err := w.SelectAID(""); !errors.Is(err, wizard.ErrStepInactive) {
		t.Fatalf("expected aid step to stay inactive, got %v", err)
	}
}

func TestRapidChangesKeepOnlyLastResult(t *testing.T) {
	hooks := newScriptedSteps()
	w := wizard.New(context.Background(), hooks, nil)
	defer w.Close()
	openWithAID(t, w, "/data/sales.csv", "")

	var pending []*pendingQuery
	for threshold := 2; threshold <= 6; threshold++ {
		params := model.DefaultAnonymizationParams()
		params.Suppression.LowThreshold = threshold
		if err := w.SetParams(params); err != nil {
			t.Fatalf("set params: %v", err)
		}
		pending = append(pending, hooks.nextQuery(t))
	}

	// Earlier queries were cancelled but answer anyway, newest first.
	for index := len(pending) - 1; index >= 0; index-- {
		pending[index].release <- resultWithCount(int64(pending[index].query.Params.Suppression.LowThreshold))
	}

	data := waitResult(t, w)
	if data.State != computed.Completed || data.Value.Rows[0].Count != 6 {
		t.Fatalf("expected the last query's result, got %+v", data)
	}
	time.Sleep(20 * time.Millisecond)
	if latest := w.Result(); latest.Value.Rows[0].Count != 6 {
		t.Fatalf("a stale result replaced the latest: %+v", latest)
	}
}

func TestCachedResultSurvivesRecomputation(t *testing.T) {
	hooks := newScriptedSteps()
	w := wizard.New(context.Background(), hooks, nil)
	defer w.Close()
	openWithAID(t, w, "/data/sales.csv", "")

	if _, seen := w.CachedResult(); seen {
		t.Fatalf("cache must start empty")
	}
	if err := w.SetCountInput(model.CountRows); err != nil {
		t.Fatalf("set count input: %v", err)
	}
	hooks.nextQuery(t).release <- resultWithCount(11)
	waitResult(t, w)

	if err := w.SetCountInput(model.CountEntities); err != nil {
		t.Fatalf("set count input: %v", err)
	}
	next := hooks.nextQuery(t)
	if w.Result().State != computed.InProgress {
		t.Fatalf("expected recomputation in progress, got %s", w.Result().State)
	}
	cached, seen := w.CachedResult()
	if !seen || cached.Rows[0].Count != 11 {
		t.Fatalf("expected previous result while recomputing, got %+v", cached)
	}

	next.release <- resultWithCount(12)
	waitResult(t, w)
	if cached, _ := w.CachedResult(); cached.Rows[0].Count != 12 {
		t.Fatalf("expected cache to follow the new result, got %+v", cached)
	}
}

func TestChangingAIDRekeysResult(t *testing.T) {
	hooks := newScriptedSteps()
	w := wizard.New(context.Background(), hooks, nil)
	defer w.Close()
	openWithAID(t, w, "/data/sales.csv", "")

	if err := w.Configure(wizard.DefaultSelection()); err != nil {
		t.Fatalf("configure: %v", err)
	}
	first := hooks.nextQuery(t)
	if err := w.SelectAID("id"); err != nil {
		t.Fatalf("select aid: %v", err)
	}
	second := hooks.nextQuery(t)
	if second.query.AidColumn != "id" || first.query.AidColumn != "" {
		t.Fatalf("unexpected aid columns %q then %q", first.query.AidColumn, second.query.AidColumn)
	}
	select {
	case cancelled := <-hooks.cancelled:
		if cancelled.AidColumn != "" {
			t.Fatalf("expected the row-index query to be cancelled, got %q", cancelled.AidColumn)
		}
	case <-time.After(testTimeout):
		t.Fatalf("superseded query was not cancelled")
	}
	second.release <- resultWithCount(3)
	if data := waitResult(t, w); data.Value.Rows[0].Count != 3 {
		t.Fatalf("unexpected result %+v", data)
	}
}

func TestReselectingSameAIDKeepsResult(t *testing.T) {
	hooks := newScriptedSteps()
	w := wizard.New(context.Background(), hooks, nil)
	defer w.Close()
	openWithAID(t, w, "/data/sales.csv", "state")

	if err := w.Configure(wizard.DefaultSelection()); err != nil {
		t.Fatalf("configure: %v", err)
	}
	held := hooks.nextQuery(t)
	if err := w.SelectAID("state"); err != nil {
		t.Fatalf("select aid: %v", err)
	}
	select {
	case pending := <-hooks.anonymize:
		t.Fatalf("unchanged dependencies restarted the query: %+v", pending.query)
	case cancelled := <-hooks.cancelled:
		t.Fatalf("unchanged dependencies cancelled the query: %+v", cancelled)
	case <-time.After(20 * time.Millisecond):
	}
	held.release <- resultWithCount(9)
	if data := waitResult(t, w); data.Value.Rows[0].Count != 9 {
		t.Fatalf("unexpected result %+v", data)
	}
}

func TestOpeningNewFileUnmountsDownstream(t *testing.T) {
	hooks := newScriptedSteps()
	hooks.exportGate = make(chan struct{})
	w := wizard.New(context.Background(), hooks, nil)
	defer w.Close()
	openWithAID(t, w, "/data/sales.csv", "")

	if err := w.Configure(wizard.DefaultSelection()); err != nil {
		t.Fatalf("configure: %v", err)
	}
	hooks.nextQuery(t).release <- resultWithCount(5)
	waitResult(t, w)
	export, err := w.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := w.SetCountInput(model.CountEntities); err != nil {
		t.Fatalf("set count input: %v", err)
	}
	hooks.nextQuery(t)

	if err := w.Open("/data/returns.csv"); err != nil {
		t.Fatalf("open: %v", err)
	}
	select {
	case <-hooks.cancelled:
	case <-time.After(testTimeout):
		t.Fatalf("in-flight anonymize was not cancelled on unmount")
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if _, err := export.Wait(ctx); !task.IsAborted(err) {
		t.Fatalf("expected export to be aborted, got %v", err)
	}
	if w.Result().State != computed.NotStarted {
		t.Fatalf("expected result step to be unmounted, got %s", w.Result().State)
	}
	if _, seen := w.CachedResult(); seen {
		t.Fatalf("a remounted step must start with an empty cache")
	}
	if w.MissingAID().State != computed.NotStarted {
		t.Fatalf("expected aid step to be unmounted, got %s", w.MissingAID().State)
	}
	if err := w.SetBuckets(nil); !errors.Is(err, wizard.ErrStepInactive) {
		t.Fatalf("expected bucket step to need a new aid selection, got %v", err)
	}
}

func TestSetBucketsCopiesSelection(t *testing.T) {
	hooks := newScriptedSteps()
	w := wizard.New(context.Background(), hooks, nil)
	defer w.Close()
	openWithAID(t, w, "/data/sales.csv", "")

	buckets := []model.BucketColumn{{TableColumn: model.TableColumn{Name: "state", Type: model.ColumnText}}}
	if err := w.SetBuckets(buckets); err != nil {
		t.Fatalf("set buckets: %v", err)
	}
	held := hooks.nextQuery(t)
	buckets[0].Name = "age"

	if name := held.query.Buckets[0].Name; name != "state" {
		t.Fatalf("held query follows the caller's slice: %q", name)
	}
	if err := w.SetCountInput(model.CountEntities); err != nil {
		t.Fatalf("set count input: %v", err)
	}
	if name := hooks.nextQuery(t).query.Buckets[0].Name; name != "state" {
		t.Fatalf("stored selection follows the caller's slice: %q", name)
	}
}

func TestInvalidParamsFailWithoutAnonymizing(t *testing.T) {
	hooks := newScriptedSteps()
	w := wizard.New(context.Background(), hooks, nil)
	defer w.Close()
	openWithAID(t, w, "/data/sales.csv", "")

	params := model.DefaultAnonymizationParams()
	params.TopCount = model.Interval{Lower: 4, Upper: 1}
	if err := w.SetParams(params); err != nil {
		t.Fatalf("set params: %v", err)
	}
	data := waitResult(t, w)
	if data.State != computed.Failed || data.Err == "" {
		t.Fatalf("expected failed result, got %+v", data)
	}
	select {
	case <-hooks.anonymize:
		t.Fatalf("invalid params must not reach the anonymizer")
	default:
	}
}

func TestExportCompletes(t *testing.T) {
	hooks := newScriptedSteps()
	w := wizard.New(context.Background(), hooks, nil)
	defer w.Close()
	openWithAID(t, w, "/data/sales.csv", "")
	if err := w.Configure(wizard.DefaultSelection()); err != nil {
		t.Fatalf("configure: %v", err)
	}
	hooks.nextQuery(t).release <- resultWithCount(4)
	waitResult(t, w)

	export, err := w.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	outcome, err := export.Wait(ctx)
	if err != nil || outcome.Path != "/data/sales_anonymized.csv" {
		t.Fatalf("unexpected export outcome %+v, %v", outcome, err)
	}
}

func TestExportRequiresCompletedResult(t *testing.T) {
	hooks := newScriptedSteps()
	w := wizard.New(context.Background(), hooks, nil)
	defer w.Close()
	openWithAID(t, w, "/data/sales.csv", "")

	if err := w.Configure(wizard.DefaultSelection()); err != nil {
		t.Fatalf("configure: %v", err)
	}
	held := hooks.nextQuery(t)
	if _, err := w.Export(); !errors.Is(err, wizard.ErrStepInactive) {
		t.Fatalf("expected export to wait for the result, got %v", err)
	}
	held.release <- resultWithCount(2)
	waitResult(t, w)

	params := model.DefaultAnonymizationParams()
	params.TopCount = model.Interval{Lower: 4, Upper: 1}
	if err := w.SetParams(params); err != nil {
		t.Fatalf("set params: %v", err)
	}
	if data := waitResult(t, w); data.State != computed.Failed {
		t.Fatalf("expected failed result, got %+v", data)
	}
	if _, seen := w.CachedResult(); !seen {
		t.Fatalf("expected the earlier result to stay cached")
	}
	if _, err := w.Export(); !errors.Is(err, wizard.ErrStepInactive) {
		t.Fatalf("expected export of a failed query to be refused, got %v", err)
	}
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	w := wizard.New(context.Background(), newScriptedSteps(), nil)
	w.Close()
	w.Close()
	if err := w.Open("/data/sales.csv"); !errors.Is(err, wizard.ErrClosed) {
		t.Fatalf("expected closed wizard, got %v", err)
	}
}

type countingGateway struct {
	mu    sync.Mutex
	calls int
}

func (g *countingGateway) Call(_ context.Context, request gateway.Request) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if request.RequestType() == gateway.TypeLoad {
		return []byte(`[["RowIndex","id","state"],[1,"1","NY"]]`), nil
	}
	return []byte(`false`), nil
}

func (g *countingGateway) HashFile(context.Context, string) (string, error) { return "feed", nil }

func (g *countingGateway) SelectExportPath(_ context.Context, defaultPath string) (string, bool, error) {
	return defaultPath, true, nil
}

func TestRowIndexModeSkipsMissingCheck(t *testing.T) {
	remote := &countingGateway{}
	w := wizard.New(context.Background(), steps.NewService(steps.Options{Gateway: remote}), nil)
	defer w.Close()
	openWithAID(t, w, "/data/sales.csv", "")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	data, err := w.WaitMissingAID(ctx)
	if err != nil || data.State != computed.Completed || data.Value {
		t.Fatalf("expected completed(false), got %+v, %v", data, err)
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if remote.calls != 1 {
		t.Fatalf("expected only the load call, got %d calls", remote.calls)
	}
}
