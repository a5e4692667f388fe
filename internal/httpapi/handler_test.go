package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/vrf_coordinator/internal/audit"
	"github.com/R3E-Network/vrf_coordinator/internal/chain"
	"github.com/R3E-Network/vrf_coordinator/internal/coordinator"
	"github.com/R3E-Network/vrf_coordinator/internal/crypto"
	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	"github.com/R3E-Network/vrf_coordinator/internal/journal"
	"github.com/R3E-Network/vrf_coordinator/internal/metrics"
	"github.com/R3E-Network/vrf_coordinator/internal/settlement"
	"github.com/R3E-Network/vrf_coordinator/internal/storage/memory"
	"github.com/R3E-Network/vrf_coordinator/internal/wrapper"
	"github.com/R3E-Network/vrf_coordinator/pkg/logger"
)

var (
	operator = util.Uint160{0xee}
	owner    = util.Uint160{0xaa}
	consumer = util.Uint160{0x01}
)

var testConfig = vrf.GlobalConfig{
	MinimumRequestConfirmations: 3,
	MaxGasLimit:                 2_500_000,
	MaxGasPrice:                 1_000_000,
	GasAfterPaymentCalculation:  33285,
	FeeTiers:                    vrf.FeeTierTable{4, 3, 2, 1, 0, 1, 2, 3, 4},
}

type fixture struct {
	srv       *httptest.Server
	subID     uint64
	requestID util.Uint256
	keyHash   util.Uint256
}

func newFixture(t *testing.T, withWrapper bool) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logger.NewDiscard("http")
	events := journal.NewMemory(0)
	m := metrics.New()
	store := memory.New()
	counter := chain.NewCounter(256, []byte("http"))
	pub := journal.New(journal.Config{Logger: log, Sinks: []journal.Sink{events}})

	coord, err := coordinator.New(coordinator.Config{
		Operator:   operator,
		Store:      store,
		Chain:      counter,
		Verifier:   crypto.NewSignatureVerifier(),
		Settlement: settlement.NewMemory(),
		Publisher:  pub,
		Metrics:    m,
		Logger:     log,
	})
	require.NoError(t, err)

	prover, err := crypto.GenerateProver()
	require.NoError(t, err)
	require.NoError(t, coord.SetConfig(ctx, operator, testConfig))
	require.NoError(t, coord.RegisterProvingKey(ctx, operator, prover.Address(), prover.PublicKey(), testConfig.MaxGasPrice))

	subID, err := coord.CreateSubscription(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, coord.AddConsumer(ctx, owner, subID, consumer))
	require.NoError(t, coord.Fund(ctx, subID, 5_000, 5_000))
	counter.Advance(5)
	reqID, err := coord.RequestRandomWords(ctx, consumer, coordinator.Request{
		KeyHash:                     prover.KeyHash(),
		SubID:                       subID,
		MinimumRequestConfirmations: 3,
		CallbackGasLimit:            10_000,
		NumWords:                    1,
	})
	require.NoError(t, err)

	cfg := Config{
		Coordinator: coord,
		Events:      events,
		Auditor:     audit.New(audit.Config{Store: store, Logger: log}),
		Metrics:     m,
		CORSOrigins: []string{"*"},
		Logger:      log,
	}
	if withWrapper {
		w, err := wrapper.New(ctx, wrapper.Config{
			Address:     util.Uint160{0x77},
			Operator:    operator,
			Coordinator: coord,
			Store:       memory.New(),
			Settlement:  settlement.NewMemory(),
			Publisher:   pub,
			Logger:      log,
		})
		require.NoError(t, err)
		require.NoError(t, w.SetConfig(ctx, operator, vrf.WrapperConfig{
			MinGasPrice:            1,
			WrapperGasOverhead:     10_000,
			CoordinatorGasOverhead: 8_000,
			KeyHash:                prover.KeyHash(),
			MaxNumWords:            2,
		}))
		cfg.Wrapper = w
	}

	srv := httptest.NewServer(NewHandler(cfg))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, subID: subID, requestID: reqID, keyHash: prover.KeyHash()}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	var body map[string]any
	assert.Equal(t, http.StatusOK, f.get(t, "/healthz", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestGetConfig(t *testing.T) {
	f := newFixture(t, false)
	var cfg vrf.GlobalConfig
	require.Equal(t, http.StatusOK, f.get(t, "/v1/config", &cfg))
	assert.Equal(t, testConfig, cfg)
}

func TestGetSubscription(t *testing.T) {
	f := newFixture(t, false)

	var body struct {
		vrf.Subscription
		PendingRequestExists bool `json:"pending_request_exists"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/subscriptions/1", &body))
	assert.Equal(t, owner, body.Owner)
	assert.Equal(t, int64(5_000), body.Balance)
	assert.True(t, body.PendingRequestExists)

	var errBody struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	assert.Equal(t, http.StatusNotFound, f.get(t, "/v1/subscriptions/99", &errBody))
	assert.Equal(t, "InvalidSubscription", errBody.Error.Code)
}

func TestGetNonce(t *testing.T) {
	f := newFixture(t, false)
	var body struct {
		Nonce uint64 `json:"nonce"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/subscriptions/1/nonces/"+consumer.StringLE(), &body))
	assert.Equal(t, uint64(2), body.Nonce)
}

func TestProvingKeys(t *testing.T) {
	f := newFixture(t, false)
	var list struct {
		Keys []vrf.ProvingKey `json:"keys"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/provingkeys", &list))
	require.Len(t, list.Keys, 1)
	assert.Equal(t, f.keyHash, list.Keys[0].Hash)

	var key vrf.ProvingKey
	require.Equal(t, http.StatusOK, f.get(t, "/v1/provingkeys/"+f.keyHash.StringLE(), &key))
	assert.Equal(t, f.keyHash, key.Hash)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/v1/provingkeys/xyz", nil))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/v1/provingkeys/"+util.Uint256{0x09}.StringLE(), nil))
}

func TestFeeTier(t *testing.T) {
	f := newFixture(t, false)
	var body struct {
		Fee     uint32 `json:"fee"`
		FlatFee int64  `json:"flat_fee"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/feetier/3", &body))
	assert.Equal(t, uint32(2), body.Fee)
	assert.Equal(t, int64(200), body.FlatFee)
}

func TestGetRequest(t *testing.T) {
	f := newFixture(t, false)
	var body struct {
		RequestID  util.Uint256 `json:"request_id"`
		Commitment util.Uint256 `json:"commitment"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/requests/0x"+f.requestID.StringLE(), &body))
	assert.Equal(t, f.requestID, body.RequestID)
	assert.NotEqual(t, util.Uint256{}, body.Commitment)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/v1/requests/"+util.Uint256{0x01}.StringLE(), nil))
}

func TestTotalsAndWithdrawable(t *testing.T) {
	f := newFixture(t, false)
	var totals map[string]int64
	require.Equal(t, http.StatusOK, f.get(t, "/v1/totals", &totals))
	assert.Equal(t, int64(5_000), totals["held"])
	assert.Equal(t, int64(0), totals["unaccounted"])

	var w struct {
		Amount int64 `json:"amount"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/withdrawable/"+owner.StringLE(), &w))
	assert.Zero(t, w.Amount)
}

func TestEvents(t *testing.T) {
	f := newFixture(t, false)
	var body struct {
		Events []journal.Envelope `json:"events"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/events", &body))
	require.NotEmpty(t, body.Events)
	assert.Equal(t, "ConfigSet", body.Events[0].Name)

	require.Equal(t, http.StatusOK, f.get(t, "/v1/events?name=RandomWordsRequested", &body))
	require.Len(t, body.Events, 1)

	require.Equal(t, http.StatusOK, f.get(t, "/v1/events?after=1&limit=1", &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, uint64(2), body.Events[0].Seq)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/v1/events?after=x", nil))
}

func TestAudit(t *testing.T) {
	f := newFixture(t, false)
	var rep audit.Report
	require.Equal(t, http.StatusOK, f.get(t, "/v1/audit", &rep))
	assert.True(t, rep.OK(), rep.Violations)
	assert.Equal(t, 1, rep.Outstanding)
}

func TestWrapperRoutes(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/v1/wrapper/config", nil))

	f = newFixture(t, true)
	var cfg struct {
		Config  vrf.WrapperConfig `json:"config"`
		Enabled bool              `json:"enabled"`
		SubID   uint64            `json:"sub_id"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/wrapper/config", &cfg))
	assert.True(t, cfg.Enabled)
	assert.Equal(t, f.keyHash, cfg.Config.KeyHash)
	assert.Equal(t, uint64(2), cfg.SubID)

	var price struct {
		Price int64 `json:"price"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/wrapper/price?callback_gas_limit=100000&num_words=1&gas_price=10", &price))
	assert.Equal(t, int64(10*(100_000+10_000+8_000+5_000)+400), price.Price)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/v1/wrapper/price?gas_price=abc", nil))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/v1/wrapper/requests/"+util.Uint256{0x01}.StringLE(), nil))
}

func TestMetricsAndCORS(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusOK, f.get(t, "/metrics", nil))

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/v1/config", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
}
