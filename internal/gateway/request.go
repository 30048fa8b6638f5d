package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/temirov/anonwiz/internal/model"
)

// RequestType tags the request union on the wire.
type RequestType string

const (
	TypeLoad             RequestType = "Load"
	TypePreview          RequestType = "Preview"
	TypeExport           RequestType = "Export"
	TypeHasMissingValues RequestType = "HasMissingValues"
)

// Request is one member of the request union sent to the anonymizer.
type Request interface {
	RequestType() RequestType
}

type LoadRequest struct {
	InputPath string `json:"inputPath"`
	Rows      int    `json:"rows"`
}

type PreviewRequest struct {
	InputPath  string                    `json:"inputPath"`
	AidColumn  string                    `json:"aidColumn"`
	Salt       string                    `json:"salt"`
	AnonParams model.AnonymizationParams `json:"anonParams"`
	Buckets    []string                  `json:"buckets"`
	CountInput model.CountInput          `json:"countInput"`
	Rows       int                       `json:"rows"`
}

type ExportRequest struct {
	InputPath  string                    `json:"inputPath"`
	AidColumn  string                    `json:"aidColumn"`
	Salt       string                    `json:"salt"`
	AnonParams model.AnonymizationParams `json:"anonParams"`
	Buckets    []string                  `json:"buckets"`
	CountInput model.CountInput          `json:"countInput"`
	OutputPath string                    `json:"outputPath"`
}

type HasMissingValuesRequest struct {
	InputPath string `json:"inputPath"`
	AidColumn string `json:"aidColumn"`
}

func (LoadRequest) RequestType() RequestType             { return TypeLoad }
func (PreviewRequest) RequestType() RequestType          { return TypePreview }
func (ExportRequest) RequestType() RequestType           { return TypeExport }
func (HasMissingValuesRequest) RequestType() RequestType { return TypeHasMissingValues }

func (request LoadRequest) MarshalJSON() ([]byte, error) {
	type fields LoadRequest
	return json.Marshal(struct {
		Type RequestType `json:"type"`
		fields
	}{TypeLoad, fields(request)})
}

func (request PreviewRequest) MarshalJSON() ([]byte, error) {
	type fields PreviewRequest
	return json.Marshal(struct {
		Type RequestType `json:"type"`
		fields
	}{TypePreview, fields(request)})
}

func (request ExportRequest) MarshalJSON() ([]byte, error) {
	type fields ExportRequest
	return json.Marshal(struct {
		Type RequestType `json:"type"`
		fields
	}{TypeExport, fields(request)})
}

func (request HasMissingValuesRequest) MarshalJSON() ([]byte, error) {
	type fields HasMissingValuesRequest
	return json.Marshal(struct {
		Type RequestType `json:"type"`
		fields
	}{TypeHasMissingValues, fields(request)})
}

// DecodeRequest parses a serialized request back into its union member.
func DecodeRequest(data []byte) (Request, error) {
	var envelope struct {
		Type RequestType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode request envelope: %w", err)
	}
	var request Request
	var err error
	switch envelope.Type {
	case TypeLoad:
		var decoded LoadRequest
		err = json.Unmarshal(data, &decoded)
		request = decoded
	case TypePreview:
		var decoded PreviewRequest
		err = json.Unmarshal(data, &decoded)
		request = decoded
	case TypeExport:
		var decoded ExportRequest
		err = json.Unmarshal(data, &decoded)
		request = decoded
	case TypeHasMissingValues:
		var decoded HasMissingValuesRequest
		err = json.Unmarshal(data, &decoded)
		request = decoded
	default:
		return nil, fmt.Errorf("unknown request type %q", envelope.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s request: %w", envelope.Type, err)
	}
	return request, nil
}
