// Package engine is a reference anonymizer that answers gateway requests from
// a local CSV file through an in-memory SQLite database.
//
// It applies low-count suppression and seeded Gaussian noise only. Star
// buckets and outlier flattening are left to a production anonymizer.
package engine

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/anonwiz/internal/fsops"
	"github.com/temirov/anonwiz/internal/gateway"
	"github.com/temirov/anonwiz/internal/model"
)

// Engine answers one request at a time.
type Engine struct {
	fs     fsops.FS
	ops    fsops.Ops
	logger *zap.Logger
}

func New(filesystem fsops.FS, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{fs: filesystem, ops: fsops.NewOps(filesystem), logger: logger}
}

// Serve reads one request from input and writes its JSON response to output.
func (e *Engine) Serve(ctx context.Context, input io.Reader, output io.Writer) error {
	payload, err := io.ReadAll(input)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	request, err := gateway.DecodeRequest(payload)
	if err != nil {
		return err
	}
	response, err := e.Handle(ctx, request)
	if err != nil {
		return fmt.Errorf("%s: %w", request.RequestType(), err)
	}
	return json.NewEncoder(output).Encode(response)
}

// Handle computes the response value for request.
func (e *Engine) Handle(ctx context.Context, request gateway.Request) (any, error) {
	e.logger.Debug("handling request", zap.String("type", string(request.RequestType())))
	switch typed := request.(type) {
	case gateway.LoadRequest:
		return e.load(typed)
	case gateway.HasMissingValuesRequest:
		return e.hasMissingValues(ctx, typed)
	case gateway.PreviewRequest:
		return e.preview(ctx, typed)
	case gateway.ExportRequest:
		return e.export(ctx, typed)
	default:
		return nil, fmt.Errorf("unsupported request type %s", request.RequestType())
	}
}

func (e *Engine) load(request gateway.LoadRequest) ([][]any, error) {
	data, err := e.readTable(request.InputPath, request.Rows)
	if err != nil {
		return nil, err
	}
	output := make([][]any, 0, len(data.rows)+1)
	header := []any{"RowIndex"}
	for _, name := range data.header {
		header = append(header, name)
	}
	output = append(output, header)
	for index, row := range data.rows {
		cells := make([]any, 0, len(data.header)+1)
		cells = append(cells, index+1)
		for column := range data.header {
			value := ""
			if column < len(row) {
				value = row[column]
			}
			cells = append(cells, value)
		}
		output = append(output, cells)
	}
	return output, nil
}

func (e *Engine) hasMissingValues(ctx context.Context, request gateway.HasMissingValuesRequest) (bool, error) {
	db, err := e.database(ctx, request.InputPath, request.AidColumn)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var missing bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s IS NULL)", tableName, request.AidColumn)
	if err := db.QueryRowContext(ctx, query).Scan(&missing); err != nil {
		return false, fmt.Errorf("check missing values: %w", err)
	}
	return missing, nil
}

type aggregateQuery struct {
	inputPath  string
	aidColumn  string
	salt       string
	params     model.AnonymizationParams
	buckets    []string
	countInput model.CountInput
	limit      int
}

func (e *Engine) preview(ctx context.Context, request gateway.PreviewRequest) (gateway.PreviewResponse, error) {
	rows, err := e.aggregate(ctx, aggregateQuery{
		inputPath:  request.InputPath,
		aidColumn:  request.AidColumn,
		salt:       request.Salt,
		params:     request.AnonParams,
		buckets:    request.Buckets,
		countInput: request.CountInput,
		limit:      request.Rows,
	})
	if err != nil {
		return gateway.PreviewResponse{}, err
	}
	columns := append(append([]string(nil), gateway.PreviewFixedColumns...), request.Buckets...)
	return gateway.PreviewResponse{SchemaVersion: gateway.PreviewSchemaVersion, Columns: columns, Rows: rows}, nil
}

func (e *Engine) export(ctx context.Context, request gateway.ExportRequest) (bool, error) {
	rows, err := e.aggregate(ctx, aggregateQuery{
		inputPath:  request.InputPath,
		aidColumn:  request.AidColumn,
		salt:       request.Salt,
		params:     request.AnonParams,
		buckets:    request.Buckets,
		countInput: request.CountInput,
	})
	if err != nil {
		return false, err
	}
	if err := e.ops.EnsureDir(request.OutputPath); err != nil {
		return false, fmt.Errorf("prepare %s: %w", request.OutputPath, err)
	}
	file, err := e.fs.Create(request.OutputPath)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", request.OutputPath, err)
	}
	writer := csv.NewWriter(file)
	header := append(append([]string(nil), request.Buckets...), "count")
	if err := writer.Write(header); err != nil {
		_ = file.Close()
		return false, fmt.Errorf("write %s: %w", request.OutputPath, err)
	}
	for _, row := range rows {
		if suppressed, _ := row[0].(bool); suppressed {
			continue
		}
		record := make([]string, 0, len(request.Buckets)+1)
		for _, value := range row[3:] {
			record = append(record, gateway.Stringify(value))
		}
		record = append(record, gateway.Stringify(row[2]))
		if err := writer.Write(record); err != nil {
			_ = file.Close()
			return false, fmt.Errorf("write %s: %w", request.OutputPath, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = file.Close()
		return false, fmt.Errorf("write %s: %w", request.OutputPath, err)
	}
	if err := file.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", request.OutputPath, err)
	}
	e.logger.Debug("export written", zap.String("path", request.OutputPath), zap.Int("buckets", len(rows)))
	return true, nil
}

// database loads path after checking that every identifier quoted in
// expressions names one of its columns.
func (e *Engine) database(ctx context.Context, path string, expressions ...string) (*sql.DB, error) {
	data, err := e.readTable(path, 0)
	if err != nil {
		return nil, err
	}
	if err := data.checkColumns(expressions...); err != nil {
		return nil, err
	}
	return openDatabase(ctx, data)
}

// aggregate returns rows in the Preview positional layout:
// lowCount, count, anonCount, then one cell per bucket expression.
func (e *Engine) aggregate(ctx context.Context, query aggregateQuery) ([][]any, error) {
	db, err := e.database(ctx, query.inputPath, append([]string{query.aidColumn}, query.buckets...)...)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	selectList := []string{fmt.Sprintf("count(DISTINCT %s)", query.aidColumn), "count(*)"}
	ordinals := make([]string, 0, len(query.buckets))
	for index, expression := range query.buckets {
		selectList = append(selectList, expression)
		ordinals = append(ordinals, fmt.Sprint(index+3))
	}
	statement := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectList, ", "), tableName)
	if len(ordinals) > 0 {
		grouping := strings.Join(ordinals, ", ")
		statement += " GROUP BY " + grouping + " ORDER BY " + grouping
	}

	result, err := db.QueryContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("run aggregate: %w", err)
	}
	defer result.Close()

	lowThreshold := int64(query.params.Suppression.LowThreshold)
	var rows [][]any
	for result.Next() {
		if query.limit > 0 && len(rows) >= query.limit {
			break
		}
		var entities, count int64
		bucketValues := make([]any, len(query.buckets))
		targets := []any{&entities, &count}
		for index := range bucketValues {
			targets = append(targets, &bucketValues[index])
		}
		if err := result.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		for index, value := range bucketValues {
			if raw, ok := value.([]byte); ok {
				bucketValues[index] = string(raw)
			}
		}

		realCount := count
		if query.countInput == model.CountEntities {
			realCount = entities
		}
		lowCount := entities < lowThreshold
		var anonCount any
		if !lowCount {
			anonCount = noisyCount(query.salt, bucketValues, realCount, query.params.LayerNoiseSD, lowThreshold)
		}
		row := append([]any{lowCount, realCount, anonCount}, bucketValues...)
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read aggregate: %w", err)
	}
	return rows, nil
}

// noisyCount adds Gaussian noise seeded by the salt and bucket values, so the
// same bucket always receives the same noise.
func noisyCount(salt string, bucketValues []any, count int64, standardDeviation float64, floor int64) int64 {
	hasher := sha256.New()
	hasher.Write([]byte(salt))
	for _, value := range bucketValues {
		hasher.Write([]byte{0})
		hasher.Write([]byte(gateway.Stringify(value)))
	}
	seed := hasher.Sum(nil)
	source := rand.NewPCG(binary.BigEndian.Uint64(seed[:8]), binary.BigEndian.Uint64(seed[8:16]))
	noise := rand.New(source).NormFloat64() * standardDeviation
	noisy := int64(math.Round(float64(count) + noise))
	if noisy < floor {
		return floor
	}
	return noisy
}
