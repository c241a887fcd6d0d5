package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"OxVenta-Custody/internal/action"
	"OxVenta-Custody/internal/chain"
	chainreg "OxVenta-Custody/internal/chain/registry"
	"OxVenta-Custody/internal/confirm"
	"OxVenta-Custody/internal/keycipher"
	"OxVenta-Custody/internal/stage"
	"OxVenta-Custody/internal/wallet"
)

const testNetwork = "devnet"

type stubClient struct {
	def chain.Definition
}

func (c *stubClient) Name() string                 { return testNetwork }
func (c *stubClient) Definition() chain.Definition { return c.def }
func (c *stubClient) BalanceAt(context.Context, string) (*big.Int, error) {
	return new(big.Int).SetUint64(1e18), nil
}
func (c *stubClient) PendingNonce(context.Context, string) (uint64, error) { return 0, nil }
func (c *stubClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}
func (c *stubClient) EstimateGas(context.Context, chain.Call) (uint64, error) { return 21000, nil }
func (c *stubClient) ReadContract(context.Context, chain.Call) ([]byte, error) {
	return make([]byte, 32), nil
}
func (c *stubClient) SignAndBroadcast(context.Context, wallet.Signer, chain.Call) (string, error) {
	return "0xfeed", nil
}
func (c *stubClient) AwaitReceipt(_ context.Context, txHash string, _ time.Duration) (*chain.TxResult, error) {
	return &chain.TxResult{Hash: txHash, BlockNumber: 1, GasUsed: 21000}, nil
}
func (c *stubClient) ExplorerLink(chain.LinkKind, string) string { return "" }
func (c *stubClient) Close()                                     {}

type stubProducer struct {
	jobs []confirm.Job
}

func (p *stubProducer) Publish(_ context.Context, job confirm.Job) error {
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *stubProducer) Close() error { return nil }

func newTestServer(t *testing.T, producer confirm.Producer) *Server {
	t.Helper()
	cipher, err := keycipher.New("api-test-secret")
	if err != nil {
		t.Fatalf("keycipher.New: %v", err)
	}
	vault := wallet.NewVault(wallet.NewMemoryStore(), cipher)
	handlers, err := action.NewRegistry(action.NewCreateToken(), action.NewCreatePair(), action.NewAddLiquidityETH())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	chains := chainreg.NewStatic(map[string]chain.Client{
		testNetwork: &stubClient{def: chain.Definition{Type: "evm"}},
	})
	executor := action.NewExecutor(vault, stage.NewMemoryStore(), chains, handlers, action.Config{ReceiptTimeout: time.Second})
	return NewServer(":0", vault, executor, producer)
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestCreateWalletAndAddress(t *testing.T) {
	server := newTestServer(t, nil)

	rec := postJSON(t, server.handleWallets, "/api/v1/wallets", createWalletRequest{
		UserUUID: "user-1", NetworkFamily: "evm", Name: "trading",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create wallet status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created createWalletResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Wallet == nil || created.Wallet.Address == "" || created.PlaintextKey == "" {
		t.Fatalf("incomplete create response: %+v", created)
	}

	dup := postJSON(t, server.handleWallets, "/api/v1/wallets", createWalletRequest{
		UserUUID: "user-1", NetworkFamily: "evm",
	})
	if dup.Code != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want 409", dup.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallets/address?user_uuid=user-1&network_family=evm", nil)
	addrRec := httptest.NewRecorder()
	server.handleWalletAddress(addrRec, req)
	if addrRec.Code != http.StatusOK {
		t.Fatalf("address status = %d", addrRec.Code)
	}
	var addr map[string]string
	if err := json.Unmarshal(addrRec.Body.Bytes(), &addr); err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if addr["address"] != created.Wallet.Address {
		t.Fatalf("address = %q, want %q", addr["address"], created.Wallet.Address)
	}
}

func TestProposeThenCancel(t *testing.T) {
	server := newTestServer(t, nil)

	rec := postJSON(t, server.handlePropose, "/api/v1/actions/propose", proposeRequest{
		Topic:    action.TopicCreateToken,
		UserUUID: "user-1",
		Network:  testNetwork,
		Payload:  map[string]string{"name": "Volt", "symbol": "VLT", "supply": "1m"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("propose status = %d, body %s", rec.Code, rec.Body.String())
	}
	var proposal action.Proposal
	if err := json.Unmarshal(rec.Body.Bytes(), &proposal); err != nil {
		t.Fatalf("decode proposal: %v", err)
	}
	if proposal.Summary == "" || proposal.ConfirmToken == "" || proposal.CancelToken == "" {
		t.Fatalf("incomplete proposal: %+v", proposal)
	}

	pendingReq := httptest.NewRequest(http.MethodGet,
		"/api/v1/actions/pending?topic="+action.TopicCreateToken+"&user_uuid=user-1", nil)
	pendingRec := httptest.NewRecorder()
	server.handlePending(pendingRec, pendingReq)
	if pendingRec.Code != http.StatusOK {
		t.Fatalf("pending status = %d", pendingRec.Code)
	}

	cancelRec := postJSON(t, server.handleDecide, "/api/v1/actions/decide", decideRequest{Token: proposal.CancelToken})
	if cancelRec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", cancelRec.Code, cancelRec.Body.String())
	}

	goneRec := httptest.NewRecorder()
	server.handlePending(goneRec, httptest.NewRequest(http.MethodGet,
		"/api/v1/actions/pending?topic="+action.TopicCreateToken+"&user_uuid=user-1", nil))
	if goneRec.Code != http.StatusNotFound {
		t.Fatalf("pending after cancel status = %d, want 404", goneRec.Code)
	}
}

func TestDecideQueuesConfirm(t *testing.T) {
	producer := &stubProducer{}
	server := newTestServer(t, producer)

	token := action.EncodeToken(action.VerbConfirm, action.TopicCreateToken, "user-1")
	rec := postJSON(t, server.handleDecide, "/api/v1/actions/decide", decideRequest{Token: token})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("decide status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(producer.jobs) != 1 {
		t.Fatalf("queued jobs = %d, want 1", len(producer.jobs))
	}
	job := producer.jobs[0]
	if job.Topic != action.TopicCreateToken || job.UserUUID != "user-1" || job.Verb != action.VerbConfirm {
		t.Fatalf("queued job = %+v", job)
	}
}

func TestDecideSyncConfirmWithoutStage(t *testing.T) {
	server := newTestServer(t, nil)

	token := action.EncodeToken(action.VerbConfirm, action.TopicCreateToken, "user-1")
	rec := postJSON(t, server.handleDecide, "/api/v1/actions/decide", decideRequest{Token: token})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for empty stage", rec.Code)
	}
	var body map[string]errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"].Code != string(stage.CodeStageExpired) {
		t.Fatalf("error code = %q, want %q", body["error"].Code, stage.CodeStageExpired)
	}
}

func TestDecideRejectsBadToken(t *testing.T) {
	server := newTestServer(t, nil)
	rec := postJSON(t, server.handleDecide, "/api/v1/actions/decide", decideRequest{Token: "%%%bad%%%"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProposeRejectsUnknownNetwork(t *testing.T) {
	server := newTestServer(t, nil)
	rec := postJSON(t, server.handlePropose, "/api/v1/actions/propose", proposeRequest{
		Topic:    action.TopicCreateToken,
		UserUUID: "user-1",
		Network:  "mystery-chain",
		Payload:  map[string]string{"name": "Volt", "symbol": "VLT", "supply": "1m"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
