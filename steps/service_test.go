package steps_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/temirov/anonwiz/internal/gateway"
	"github.com/temirov/anonwiz/internal/model"
	"github.com/temirov/anonwiz/steps"
)

type fakeGateway struct {
	mu        sync.Mutex
	requests  []gateway.Request
	responses map[gateway.RequestType]string
	callErr   error
	hash      string
	hashErr   error
	selected  string
	cancelled bool
	defaults  []string
}

func (f *fakeGateway) Call(_ context.Context, request gateway.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request)
	if f.callErr != nil {
		return nil, f.callErr
	}
	return []byte(f.responses[request.RequestType()]), nil
}

func (f *fakeGateway) HashFile(_ context.Context, _ string) (string, error) {
	return f.hash, f.hashErr
}

func (f *fakeGateway) SelectExportPath(_ context.Context, defaultPath string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaults = append(f.defaults, defaultPath)
	if f.cancelled {
		return "", false, nil
	}
	if f.selected != "" {
		return f.selected, true, nil
	}
	return defaultPath, true, nil
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func salesSchema() model.TableSchema {
	return model.TableSchema{
		SourceFile: "/data/sales.csv",
		Salt:       "abc123",
		Columns: []model.TableColumn{
			{Name: "id", Type: model.ColumnInteger},
			{Name: "state", Type: model.ColumnText},
			{Name: "ageBin", Type: model.ColumnInteger},
			{Name: "price", Type: model.ColumnReal},
		},
	}
}

func TestLoadSchemaInfersTypesAndSalt(t *testing.T) {
	remote := &fakeGateway{
		hash: "deadbeef",
		responses: map[gateway.RequestType]string{
			gateway.TypeLoad: `[["RowIndex","id","state","price"],[1,"1","NY","1.5"],[2,"2","","2"]]`,
		},
	}
	service := steps.NewService(steps.Options{Gateway: remote, PreviewRows: 50})

	schema, err := service.LoadSchema(context.Background(), "/data/sales.csv")
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	expected := []model.TableColumn{
		{Name: "id", Type: model.ColumnInteger},
		{Name: "state", Type: model.ColumnText},
		{Name: "price", Type: model.ColumnReal},
	}
	if diff := cmp.Diff(expected, schema.Columns); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if schema.Salt != "deadbeef" || schema.SourceFile != "/data/sales.csv" || len(schema.RowsPreview) != 2 {
		t.Fatalf("unexpected schema %+v", schema)
	}
	load, ok := remote.requests[0].(gateway.LoadRequest)
	if !ok || load.Rows != 50 {
		t.Fatalf("unexpected load request %#v", remote.requests[0])
	}
}

func TestLoadSchemaFailsWhenHashFails(t *testing.T) {
	remote := &fakeGateway{
		hashErr:   errors.New("permission denied"),
		responses: map[gateway.RequestType]string{gateway.TypeLoad: `[["RowIndex","a"]]`},
	}
	service := steps.NewService(steps.Options{Gateway: remote})
	_, err := service.LoadSchema(context.Background(), "/data/sales.csv")
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected hash failure, got %v", err)
	}
}

func TestHasMissingAIDShortCircuitsRowIndexMode(t *testing.T) {
	remote := &fakeGateway{}
	service := steps.NewService(steps.Options{Gateway: remote})

	missing, err := service.HasMissingAID(context.Background(), salesSchema(), "")
	if err != nil || missing {
		t.Fatalf("expected (false, nil), got (%v, %v)", missing, err)
	}
	if remote.calls() != 0 {
		t.Fatalf("expected zero remote calls, got %d", remote.calls())
	}
}

func TestHasMissingAIDQuotesColumn(t *testing.T) {
	remote := &fakeGateway{responses: map[gateway.RequestType]string{gateway.TypeHasMissingValues: `true`}}
	service := steps.NewService(steps.Options{Gateway: remote})

	missing, err := service.HasMissingAID(context.Background(), salesSchema(), "id")
	if err != nil || !missing {
		t.Fatalf("expected (true, nil), got (%v, %v)", missing, err)
	}
	request := remote.requests[0].(gateway.HasMissingValuesRequest)
	if request.AidColumn != `"id"` || request.InputPath != "/data/sales.csv" {
		t.Fatalf("unexpected request %+v", request)
	}
	if _, err := service.HasMissingAID(context.Background(), salesSchema(), "nope"); !errors.Is(err, steps.ErrUnknownColumn) {
		t.Fatalf("expected unknown column, got %v", err)
	}
}

func TestBucketExpression(t *testing.T) {
	binSize := 10.0
	halfBin := 0.5
	testCases := []struct {
		name     string
		bucket   model.BucketColumn
		expected string
	}{
		{
			name:     "raw text",
			bucket:   model.BucketColumn{TableColumn: model.TableColumn{Name: "state", Type: model.ColumnText}},
			expected: `"state"`,
		},
		{
			name: "integer bin",
			bucket: model.BucketColumn{
				TableColumn:    model.TableColumn{Name: "age", Type: model.ColumnInteger},
				Generalization: &model.Generalization{BinSize: &binSize},
			},
			expected: `floor("age" / 10) * 10`,
		},
		{
			name: "real bin",
			bucket: model.BucketColumn{
				TableColumn:    model.TableColumn{Name: "price", Type: model.ColumnReal},
				Generalization: &model.Generalization{BinSize: &halfBin},
			},
			expected: `floor("price" / 0.5) * 0.5`,
		},
		{
			name: "text substring",
			bucket: model.BucketColumn{
				TableColumn:    model.TableColumn{Name: "zip", Type: model.ColumnText},
				Generalization: &model.Generalization{Substring: &model.SubstringWindow{Start: 1, Length: 3}},
			},
			expected: `substring("zip", 1, 3)`,
		},
		{
			name: "boolean ignores generalization",
			bucket: model.BucketColumn{
				TableColumn:    model.TableColumn{Name: "active", Type: model.ColumnBoolean},
				Generalization: &model.Generalization{BinSize: &binSize},
			},
			expected: `"active"`,
		},
		{
			name:     "embedded quote",
			bucket:   model.BucketColumn{TableColumn: model.TableColumn{Name: `say "hi"`, Type: model.ColumnText}},
			expected: `"say ""hi"""`,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := steps.BucketExpression(testCase.bucket); got != testCase.expected {
				t.Fatalf("BucketExpression = %s, expected %s", got, testCase.expected)
			}
		})
	}
}

func salesQuery() steps.Query {
	return steps.Query{
		Schema:    salesSchema(),
		AidColumn: "id",
		Buckets: []model.BucketColumn{
			{TableColumn: model.TableColumn{Name: "state", Type: model.ColumnText}},
			{TableColumn: model.TableColumn{Name: "ageBin", Type: model.ColumnInteger}},
		},
		CountInput: model.CountRows,
		Params:     model.DefaultAnonymizationParams(),
	}
}

func TestAnonymizeDecodesPositionalRows(t *testing.T) {
	remote := &fakeGateway{responses: map[gateway.RequestType]string{
		gateway.TypePreview: `{"schemaVersion":1,"columns":["lowCount","count","anonCount","\"state\"","\"ageBin\""],"rows":[[false,42,40,"NY",5],[true,2,null,"VT",1]]}`,
	}}
	service := steps.NewService(steps.Options{Gateway: remote})

	result, err := service.Anonymize(context.Background(), salesQuery())
	if err != nil {
		t.Fatalf("anonymize: %v", err)
	}
	anonCount := int64(40)
	expected := []model.ResultRow{
		{LowCount: false, Count: 42, DiffixCount: &anonCount, BucketValues: map[string]any{"state": "NY", "ageBin": float64(5)}},
		{LowCount: true, Count: 2, BucketValues: map[string]any{"state": "VT", "ageBin": float64(1)}},
	}
	if diff := cmp.Diff(expected, result.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	if result.Summary.SuppressedBuckets != 1 || result.Summary.TotalCount != 44 {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}

	request := remote.requests[0].(gateway.PreviewRequest)
	if request.AidColumn != `"id"` || request.Salt != "abc123" || request.Rows != steps.DefaultPreviewRows {
		t.Fatalf("unexpected request %+v", request)
	}
	if diff := cmp.Diff([]string{`"state"`, `"ageBin"`}, request.Buckets); diff != "" {
		t.Fatalf("bucket mismatch (-want +got):\n%s", diff)
	}
}

func TestAnonymizeRejectsDrift(t *testing.T) {
	remote := &fakeGateway{responses: map[gateway.RequestType]string{
		gateway.TypePreview: `{"schemaVersion":1,"columns":["lowCount","count","anonCount","a","b"],"rows":[["no",42,40,"NY",5]]}`,
	}}
	service := steps.NewService(steps.Options{Gateway: remote})
	if _, err := service.Anonymize(context.Background(), salesQuery()); !errors.Is(err, gateway.ErrSchemaDrift) {
		t.Fatalf("expected schema drift, got %v", err)
	}
}

func TestAnonymizeValidatesBeforeCalling(t *testing.T) {
	remote := &fakeGateway{}
	service := steps.NewService(steps.Options{Gateway: remote})

	query := salesQuery()
	query.Params.Suppression.LowThreshold = 0
	if _, err := service.Anonymize(context.Background(), query); err == nil {
		t.Fatalf("expected invalid params to fail")
	}
	query = salesQuery()
	query.Buckets = append(query.Buckets, model.BucketColumn{TableColumn: model.TableColumn{Name: "ghost"}})
	if _, err := service.Anonymize(context.Background(), query); !errors.Is(err, steps.ErrUnknownColumn) {
		t.Fatalf("expected unknown column, got %v", err)
	}
	query = salesQuery()
	binSize := 10.0
	query.Buckets = append(query.Buckets, model.BucketColumn{
		TableColumn:    model.TableColumn{Name: "ageBin", Type: model.ColumnInteger},
		Generalization: &model.Generalization{BinSize: &binSize},
	})
	if _, err := service.Anonymize(context.Background(), query); !errors.Is(err, steps.ErrDuplicateBucket) {
		t.Fatalf("expected duplicate bucket, got %v", err)
	}
	if remote.calls() != 0 {
		t.Fatalf("invalid queries must not reach the gateway")
	}
}

func TestRowIndexModeUsesRowIndexReference(t *testing.T) {
	query := salesQuery()
	query.AidColumn = ""
	request := steps.PreviewRequest(query, 10)
	if request.AidColumn != steps.RowIndexColumn {
		t.Fatalf("expected row index aid, got %s", request.AidColumn)
	}
	encoded, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(encoded), `"type":"Preview"`) {
		t.Fatalf("expected tagged request, got %s", encoded)
	}
}

func TestExport(t *testing.T) {
	remote := &fakeGateway{responses: map[gateway.RequestType]string{gateway.TypeExport: `true`}}
	service := steps.NewService(steps.Options{Gateway: remote})

	outcome, err := service.Export(context.Background(), salesQuery())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if outcome.Path != "/data/sales_anonymized.csv" || outcome.Cancelled {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	request := remote.requests[0].(gateway.ExportRequest)
	if request.OutputPath != "/data/sales_anonymized.csv" || len(request.Buckets) != 2 {
		t.Fatalf("unexpected export request %+v", request)
	}

	cancelled := &fakeGateway{cancelled: true}
	outcome, err = steps.NewService(steps.Options{Gateway: cancelled}).Export(context.Background(), salesQuery())
	if err != nil || !outcome.Cancelled {
		t.Fatalf("expected cancelled outcome, got (%+v, %v)", outcome, err)
	}
	if cancelled.calls() != 0 {
		t.Fatalf("cancelled export must not call the anonymizer")
	}

	failing := &fakeGateway{callErr: errors.New("disk full")}
	if _, err := steps.NewService(steps.Options{Gateway: failing}).Export(context.Background(), salesQuery()); err == nil {
		t.Fatalf("expected export failure")
	}

	testCases := []struct {
		name     string
		response string
		syntax   bool
	}{
		{name: "unconfirmed write", response: `false`},
		{name: "malformed confirmation", response: `written`, syntax: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			remote := &fakeGateway{responses: map[gateway.RequestType]string{gateway.TypeExport: testCase.response}}
			_, err := steps.NewService(steps.Options{Gateway: remote}).Export(context.Background(), salesQuery())
			if err == nil {
				t.Fatalf("expected export to fail")
			}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) != testCase.syntax {
				t.Fatalf("unexpected error chain: %v", err)
			}
		})
	}
}

func TestDefaultExportPath(t *testing.T) {
	testCases := map[string]string{
		"/data/sales.csv":        "/data/sales_anonymized.csv",
		"/data/archive.2024.csv": "/data/archive.2024_anonymized.csv",
		"/data/noext":            "/data/noext_anonymized.csv",
	}
	for source, expected := range testCases {
		if got := steps.DefaultExportPath(source); got != expected {
			t.Fatalf("DefaultExportPath(%s) = %s, expected %s", source, got, expected)
		}
	}
}
