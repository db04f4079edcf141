package decode

import (
	"encoding/json"
	"testing"
)

type samplePayload struct {
	ID    string `json:"id"`
	Name  string `json:"displayName"`
	Count int    `json:"count"`
}

func TestDecodeRaw(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    samplePayload
		wantErr bool
	}{
		{
			name: "strings",
			raw:  `{"id":"a1","displayName":"Alice","count":2}`,
			want: samplePayload{ID: "a1", Name: "Alice", Count: 2},
		},
		{
			name: "numeric id becomes string",
			raw:  `{"id":1717171717171,"displayName":"Bob"}`,
			want: samplePayload{ID: "1717171717171", Name: "Bob"},
		},
		{
			name: "string count is weakly typed",
			raw:  `{"id":"x","count":"7"}`,
			want: samplePayload{ID: "x", Count: 7},
		},
		{
			name: "id beyond float precision keeps every digit",
			raw:  `{"id":12345678901234567891}`,
			want: samplePayload{ID: "12345678901234567891"},
		},
		{
			name: "snowflake sized id",
			raw:  `{"id":898152560416813057,"count":3}`,
			want: samplePayload{ID: "898152560416813057", Count: 3},
		},
		{
			name: "fractional number into string",
			raw:  `{"id":2.5}`,
			want: samplePayload{ID: "2.5"},
		},
		{name: "fractional count", raw: `{"count":2.5}`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "empty", raw: ``, wantErr: true},
		{name: "object for string field", raw: `{"id":{"x":1}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRaw[samplePayload](json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != tt.want {
				t.Fatalf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestDecodeStrict(t *testing.T) {
	_, err := DecodeMap[samplePayload](map[string]any{"count": "7"}, Options{WeaklyTypedInput: false})
	if err == nil {
		t.Fatal("strict decoding should reject string for int")
	}
}
