package cli

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/grammarctl/internal/recognizer/simulated"
)

type recognizersResponse struct {
	Status string            `json:"status"`
	Data   RecognizersResult `json:"data"`
}

func TestRecognizers_DefaultBackend(t *testing.T) {
	out, err := execute(t, NewRecognizersCommand(&RootOptions{Format: "json"}))
	require.NoError(t, err)

	var resp recognizersResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, simulated.BackendName, resp.Data.Backend)
	require.Len(t, resp.Data.Recognizers, len(simulated.DefaultCultures))
	assert.Equal(t, simulated.DefaultCultures[0].String(), resp.Data.Recognizers[0].Culture)
	assert.True(t, resp.Data.Recognizers[0].Default)
	for _, r := range resp.Data.Recognizers[1:] {
		assert.False(t, r.Default, r.Culture)
	}
}

func TestRecognizers_BackendOptions(t *testing.T) {
	out, err := execute(t, NewRecognizersCommand(&RootOptions{Format: "text"}),
		"--option", "cultures=de-DE,fr-FR")
	require.NoError(t, err)

	assert.Contains(t, out, "Backend: simulated")
	assert.Contains(t, out, "* de-DE")
	assert.Contains(t, out, "  fr-FR")
	assert.NotContains(t, out, "en-US")
}

func TestRecognizers_UnknownBackend(t *testing.T) {
	_, err := execute(t, NewRecognizersCommand(&RootOptions{Format: "text"}), "--backend", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRecognizers_ListBackends(t *testing.T) {
	out, err := execute(t, NewRecognizersCommand(&RootOptions{Format: "text"}), "--backends")
	require.NoError(t, err)
	assert.Contains(t, out, simulated.BackendName)
}
