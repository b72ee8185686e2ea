package service

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/consensus"
	"github.com/mosaicnetworks/forkchain/src/crypto"
	"github.com/mosaicnetworks/forkchain/src/ledger"
	"github.com/mosaicnetworks/forkchain/src/net"
	"github.com/mosaicnetworks/forkchain/src/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) (*Service, *node.Node) {
	logger := common.NewTestEntry(t, common.TestLogLevel)

	conf := consensus.NewDefaultConfig()
	conf.Difficulty = 1
	algo, err := consensus.New(conf, logger)
	require.NoError(t, err)

	chainConf := blockchain.NewTestConfig(t, common.TestLogLevel)
	chainConf.InitialBalances = map[string]float64{"0": 100, "1": 100}
	chain := blockchain.NewBlockchain(chainConf, algo)

	_, trans := net.NewInmemTransport("0", logger)
	n := node.NewNode("0", node.NewTestConfig(t, common.TestLogLevel), algo, chain, trans)

	return NewService("127.0.0.1:0", n, logger), n
}

func do(t *testing.T, s *Service, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetStats(t *testing.T) {
	s, _ := testService(t)

	rec := do(t, s, "GET", "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var stats map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, "0", stats["id"])
	assert.Equal(t, "1", stats["chain_length"])
}

func TestGetBlockAndChain(t *testing.T) {
	s, _ := testService(t)

	rec := do(t, s, "GET", "/block/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var b BlockResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&b))
	require.NotNil(t, b.Block)
	assert.Equal(t, ledger.GenesisHash(), b.Hash)
	assert.Equal(t, crypto.ZeroHash, b.MerkleRoot)

	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/block/5", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/block/abc", nil).Code)

	rec = do(t, s, "GET", "/chain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info blockchain.Info
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, 1, info.ChainLength)
	assert.Equal(t, 100.0, info.Balance)

	rec = do(t, s, "GET", "/blocks?from=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var blocks []*ledger.Block
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&blocks))
	assert.Len(t, blocks, 1)

	assert.Equal(t, http.StatusBadRequest, do(t, s, "GET", "/blocks?from=x", nil).Code)
}

func TestPostTransaction(t *testing.T) {
	s, n := testService(t)

	rec := do(t, s, "POST", "/tx", TransactionRequest{Receiver: "1", Amount: 12.5})
	require.Equal(t, http.StatusCreated, rec.Code)
	var tx ledger.Transaction
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tx))
	assert.Equal(t, "0", tx.Sender)
	assert.True(t, tx.VerifyHash())

	rec = do(t, s, "GET", "/pending", nil)
	var pending []*ledger.Transaction
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pending))
	require.Len(t, pending, 1)
	assert.Equal(t, tx.Hash, pending[0].Hash)

	assert.Equal(t, http.StatusBadRequest, do(t, s, "POST", "/tx", TransactionRequest{Receiver: "1", Amount: 1000}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, "POST", "/tx", TransactionRequest{Amount: 1}).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, "GET", "/tx", nil).Code)
	assert.Equal(t, 1, n.Blockchain().PendingCount())
}

func TestGetBalance(t *testing.T) {
	s, _ := testService(t)

	rec := do(t, s, "GET", "/balance/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res balanceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "1", res.Address)
	assert.Equal(t, 100.0, res.Balance)
}
