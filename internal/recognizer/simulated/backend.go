package simulated

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/roach88/grammarctl/internal/recognizer"
)

func init() {
	recognizer.Register(&recognizer.Backend{
		Name:        BackendName,
		Description: "text-driven in-process recognizer",
		Factory:     Open,
	})
}

// Open builds an engine from backend options.
//
// Supported options:
//
//	cultures  comma-separated installed cultures (default: DefaultCultures)
func Open(opts map[string]string) (recognizer.Engine, error) {
	var engineOpts []Option
	if raw := strings.TrimSpace(opts["cultures"]); raw != "" {
		var tags []language.Tag
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			tag, err := language.Parse(name)
			if err != nil {
				return nil, fmt.Errorf("invalid culture %q in cultures option: %w", name, err)
			}
			tags = append(tags, tag)
		}
		engineOpts = append(engineOpts, WithCultures(tags...))
	}
	return New(engineOpts...), nil
}
