package azure

import (
	"github.com/goccy/go-json"
)

// detailedResult is the subset of the Speech service's detailed JSON
// result needed to recover a confidence score.
type detailedResult struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	NBest             []struct {
		Confidence float64 `json:"Confidence"`
		Lexical    string  `json:"Lexical"`
		Display    string  `json:"Display"`
	} `json:"NBest"`
}

// parseConfidence extracts the top hypothesis confidence from a detailed
// JSON result. Returns ok=false when the payload carries none.
func parseConfidence(payload string) (float64, bool) {
	if payload == "" {
		return 0, false
	}
	var res detailedResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return 0, false
	}
	if len(res.NBest) == 0 {
		return 0, false
	}
	return res.NBest[0].Confidence, true
}
