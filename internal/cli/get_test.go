package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Text(t *testing.T) {
	cfgPath := seedCatalog(t)

	out, err := execute(t, "", "--config", cfgPath, "get", "ev1")
	require.NoError(t, err)
	assert.Contains(t, out, "evid:       ev1")
	assert.Contains(t, out, "mag:        2.1")
	assert.Contains(t, out, "region:     messina strait")
}

func TestGet_JSON(t *testing.T) {
	cfgPath := seedCatalog(t)

	out, err := execute(t, "", "--config", cfgPath, "--format", "json", "get", "ev1")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ev1", resp.Data["evid"])
	assert.Equal(t, "2024-05-01T12:00:00.000Z", resp.Data["time"])
	assert.Nil(t, resp.Data["event_type"])
}

func TestGet_Version(t *testing.T) {
	cfgPath := seedCatalog(t)
	revised := `{"evid":"ev1","time":"2024-05-01T12:00:00Z","lat":38.1,"lon":15.6,"depth":10,"mag":2.4,"mag_type":"ML"}` + "\n"
	_, err := execute(t, revised, "--config", cfgPath, "add", "-")
	require.NoError(t, err)

	out, err := execute(t, "", "--config", cfgPath, "get", "ev1", "--version", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "mag:        2.1")
}

func TestGet_NotFound(t *testing.T) {
	cfgPath := seedCatalog(t)

	out, err := execute(t, "", "--config", cfgPath, "get", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "NOT_FOUND")
}
