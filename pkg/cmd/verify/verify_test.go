package verify

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/sentinel-replay/pkg/analysis/overlay"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/utils"
)

func chain(t *testing.T, payloads ...string) []model.SecureReceipt {
	t.Helper()
	prev := utils.GenesisHash
	ret := make([]model.SecureReceipt, 0, len(payloads))
	for i, p := range payloads {
		h, err := overlay.ReceiptHash(json.RawMessage(p), prev)
		require.NoError(t, err)
		ret = append(ret, model.SecureReceipt{
			ID:            "EVT-" + string(rune('A'+i)),
			PreviousHash:  prev,
			IntegrityHash: h,
			Payload:       json.RawMessage(p),
		})
		prev = h
	}
	return ret
}

func TestVerify(t *testing.T) {
	receipts := chain(t, `{"type":"DRIVER LOCK-UP"}`, `{"type":"TRACTION LOSS"}`)
	data, err := json.Marshal(receipts)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Verify(bytes.NewReader(data), &out))
	assert.Contains(t, out.String(), "[2] EVT-B: verified")
	assert.Contains(t, out.String(), "no tampering")
}

func TestVerify_analysisResult(t *testing.T) {
	res := model.AnalysisResult{SecureReceipts: chain(t, `{"a":1}`)}
	data, err := json.Marshal(res)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, Verify(bytes.NewReader(data), &out))
	assert.Contains(t, out.String(), "scanning 1 receipts")
}

func TestVerify_tampered(t *testing.T) {
	receipts := chain(t, `{"type":"DRIVER LOCK-UP"}`, `{"type":"TRACTION LOSS"}`, `{"x":1}`)
	receipts[1].Payload = json.RawMessage(`{"type":"NONE"}`)
	data, err := json.Marshal(receipts)
	require.NoError(t, err)

	var out bytes.Buffer
	err = Verify(bytes.NewReader(data), &out)
	require.ErrorIs(t, err, ErrCompromised)
	assert.ErrorIs(t, err, overlay.ErrTampered)
	assert.Contains(t, out.String(), "[1] EVT-A: verified")
	assert.NotContains(t, out.String(), "EVT-C")
}

func TestVerify_invalidJSON(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, Verify(strings.NewReader("[{"), &out))
	assert.Error(t, Verify(strings.NewReader("{"), &out))
}
