package azure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    float64
		ok      bool
	}{
		{
			name:    "top hypothesis",
			payload: `{"RecognitionStatus":"Success","DisplayText":"Yes.","NBest":[{"Confidence":0.87,"Lexical":"yes","Display":"Yes."},{"Confidence":0.1,"Lexical":"yeah","Display":"Yeah."}]}`,
			want:    0.87,
			ok:      true,
		},
		{name: "no hypotheses", payload: `{"RecognitionStatus":"NoMatch","NBest":[]}`},
		{name: "empty", payload: ""},
		{name: "malformed", payload: `{"NBest":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseConfidence(tt.payload)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
