package gateway_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/temirov/anonwiz/internal/gateway"
)

func TestDecodePreview(t *testing.T) {
	buckets := []string{`"state"`, `floor("age" / 10) * 10`}
	testCases := []struct {
		name          string
		payload       string
		expectedDrift bool
	}{
		{
			name:    "valid envelope",
			payload: `{"schemaVersion":1,"columns":["lowCount","count","anonCount","\"state\"","x"],"rows":[[false,42,40,"NY",5],[true,2,null,"VT",7]]}`,
		},
		{
			name:          "unknown version",
			payload:       `{"schemaVersion":2,"columns":["lowCount","count","anonCount","a","b"],"rows":[]}`,
			expectedDrift: true,
		},
		{
			name:          "reordered fixed columns",
			payload:       `{"schemaVersion":1,"columns":["count","lowCount","anonCount","a","b"],"rows":[]}`,
			expectedDrift: true,
		},
		{
			name:          "missing bucket column",
			payload:       `{"schemaVersion":1,"columns":["lowCount","count","anonCount","a"],"rows":[]}`,
			expectedDrift: true,
		},
		{
			name:          "short row",
			payload:       `{"schemaVersion":1,"columns":["lowCount","count","anonCount","a","b"],"rows":[[false,1,1,"x"]]}`,
			expectedDrift: true,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			response, err := gateway.DecodePreview([]byte(testCase.payload), buckets)
			if testCase.expectedDrift {
				if !errors.Is(err, gateway.ErrSchemaDrift) {
					t.Fatalf("expected schema drift, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(response.Rows) != 2 || response.Rows[1][2] != nil {
				t.Fatalf("unexpected rows %v", response.Rows)
			}
		})
	}
}

func TestDecodeLoadDropsRowIndex(t *testing.T) {
	header, rows, err := gateway.DecodeLoad([]byte(`[["RowIndex","state","age","active"],[1,"NY",42,true],[2,"VT",null,false]]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff([]string{"state", "age", "active"}, header); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	expectedRows := [][]string{{"NY", "42", "true"}, {"VT", "", "false"}}
	if diff := cmp.Diff(expectedRows, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	if _, _, err := gateway.DecodeLoad([]byte(`[]`)); !errors.Is(err, gateway.ErrSchemaDrift) {
		t.Fatalf("expected empty table to drift, got %v", err)
	}
}

func TestDecodeBool(t *testing.T) {
	value, err := gateway.DecodeBool([]byte(" true\n"))
	if err != nil || !value {
		t.Fatalf("unexpected decode (%v, %v)", value, err)
	}
	if _, err := gateway.DecodeBool([]byte(`"yes"`)); err == nil {
		t.Fatalf("expected string to fail")
	}
}
