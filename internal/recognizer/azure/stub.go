//go:build !azurespeech

package azure

import (
	"fmt"

	"github.com/roach88/grammarctl/internal/recognizer"
)

func open(map[string]string) (recognizer.Engine, error) {
	return nil, fmt.Errorf("azure recognizer backend not available (build with -tags=azurespeech)")
}

func init() {
	recognizer.Register(&recognizer.Backend{
		Name:        BackendName,
		Description: "Azure Speech (disabled - build with -tags=azurespeech to enable)",
		Factory:     open,
	})
}
