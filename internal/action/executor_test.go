package action

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"OxVenta-Custody/internal/chain"
	chainreg "OxVenta-Custody/internal/chain/registry"
	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/keycipher"
	"OxVenta-Custody/internal/stage"
	"OxVenta-Custody/internal/wallet"
)

const (
	testNetwork = "sepolia"
	testFactory = "0x00000000000000000000000000000000000000F1"
	testRouter  = "0x00000000000000000000000000000000000000F2"
	testWrapped = "0x00000000000000000000000000000000000000F3"
	testToken   = "0x1111111111111111111111111111111111111111"
)

// stubChain 模拟链客户端：余额、gas、只读返回值与回执全部可控。
type stubChain struct {
	def            chain.Definition
	balance        *big.Int
	gasPrice       *big.Int
	gasEstimate    uint64
	estimateCalls  int
	readOutput     []byte
	broadcastHash  string
	broadcastErr   error
	broadcastCalls int
	lastCall       chain.Call
	result         *chain.TxResult
	awaitErr       error
}

func newStubChain() *stubChain {
	return &stubChain{
		def: chain.Definition{
			Type:                 "evm",
			ExplorerURL:          "https://explorer.test",
			ChainID:              11155111,
			FactoryAddress:       testFactory,
			RouterAddress:        testRouter,
			WrappedNativeAddress: testWrapped,
			TokenArtifact:        "testdata/token.json",
		},
		balance:       mustBig("1000000000000000000"),
		gasPrice:      big.NewInt(1),
		gasEstimate:   21_000,
		readOutput:    make([]byte, 32),
		broadcastHash: "0xfeedbeef",
		result: &chain.TxResult{
			Hash:        "0xfeedbeef",
			BlockNumber: 4242,
			GasUsed:     84_000,
		},
	}
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int literal " + s)
	}
	return v
}

func (s *stubChain) Name() string                 { return testNetwork }
func (s *stubChain) Definition() chain.Definition { return s.def }
func (s *stubChain) Close()                       {}

func (s *stubChain) BalanceAt(context.Context, string) (*big.Int, error) {
	return s.balance, nil
}

func (s *stubChain) PendingNonce(context.Context, string) (uint64, error) {
	return 0, nil
}

func (s *stubChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return s.gasPrice, nil
}

func (s *stubChain) EstimateGas(context.Context, chain.Call) (uint64, error) {
	s.estimateCalls++
	return s.gasEstimate, nil
}

func (s *stubChain) ReadContract(context.Context, chain.Call) ([]byte, error) {
	return s.readOutput, nil
}

func (s *stubChain) SignAndBroadcast(_ context.Context, _ wallet.Signer, call chain.Call) (string, error) {
	s.broadcastCalls++
	s.lastCall = call
	if s.broadcastErr != nil {
		return "", s.broadcastErr
	}
	return s.broadcastHash, nil
}

func (s *stubChain) AwaitReceipt(context.Context, string, time.Duration) (*chain.TxResult, error) {
	if s.awaitErr != nil {
		return nil, s.awaitErr
	}
	return s.result, nil
}

func (s *stubChain) ExplorerLink(kind chain.LinkKind, value string) string {
	if value == "" {
		return ""
	}
	return "https://explorer.test/" + string(kind) + "/" + value
}

var _ chain.Client = (*stubChain)(nil)

type fixture struct {
	exec   *Executor
	vault  *wallet.Vault
	stages stage.Store
	chain  *stubChain
}

func newFixture(t *testing.T, stub *stubChain) *fixture {
	t.Helper()
	cipher, err := keycipher.New("executor-test-secret")
	if err != nil {
		t.Fatalf("keycipher.New: %v", err)
	}
	vault := wallet.NewVault(wallet.NewMemoryStore(), cipher)
	stages := stage.NewMemoryStore()
	chains := chainreg.NewStatic(map[string]chain.Client{testNetwork: stub})
	handlers, err := NewRegistry(NewCreateToken(), NewCreatePair(), NewAddLiquidityETH())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return &fixture{
		exec:   NewExecutor(vault, stages, chains, handlers, Config{ReceiptTimeout: time.Second}),
		vault:  vault,
		stages: stages,
		chain:  stub,
	}
}

func (f *fixture) createWallet(t *testing.T, userID string) {
	t.Helper()
	if _, err := f.vault.Create(context.Background(), userID, wallet.FamilyEVM, ""); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
}

type recorder struct {
	messages []string
}

func (r *recorder) Progress(message string) {
	r.messages = append(r.messages, message)
}

func TestConfirmCreateTokenHappyPath(t *testing.T) {
	f := newFixture(t, newStubChain())
	f.createWallet(t, "user-1")
	ctx := context.Background()

	proposal, err := f.exec.Propose(ctx, TopicCreateToken, "user-1", testNetwork, map[string]string{
		"name":   "Volt",
		"symbol": "vlt",
		"supply": "1m",
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if proposal.Summary == "" || proposal.ConfirmToken == "" || proposal.CancelToken == "" {
		t.Fatalf("incomplete proposal %+v", proposal)
	}

	report := &recorder{}
	outcome, err := f.exec.Confirm(ctx, TopicCreateToken, "user-1", report)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if outcome.Result.Hash != "0xfeedbeef" {
		t.Fatalf("hash = %s", outcome.Result.Hash)
	}
	if outcome.Result.BlockNumber != 4242 || outcome.Result.GasUsed != 84_000 {
		t.Fatalf("unexpected result %+v", outcome.Result)
	}
	if f.chain.broadcastCalls != 1 {
		t.Fatalf("broadcast called %d times", f.chain.broadcastCalls)
	}
	// 进度消息依次是提交、等待、最终详情。
	if len(report.messages) != 3 {
		t.Fatalf("got %d progress messages: %v", len(report.messages), report.messages)
	}
	if report.messages[0] != "Transaction submitted: 0xfeedbeef" {
		t.Fatalf("first message = %q", report.messages[0])
	}
	// 暂存已清除，重复确认失败。
	if _, err := f.exec.Confirm(ctx, TopicCreateToken, "user-1", report); !errors.Is(err, stage.ErrStageExpired) {
		t.Fatalf("second confirm err = %v, want ErrStageExpired", err)
	}
}

func TestConfirmBalanceGate(t *testing.T) {
	stub := newStubChain()
	stub.balance = big.NewInt(1000)
	stub.gasEstimate = 2000
	stub.gasPrice = big.NewInt(1)
	f := newFixture(t, stub)
	f.createWallet(t, "user-1")
	ctx := context.Background()

	if _, err := f.exec.Propose(ctx, TopicCreateToken, "user-1", testNetwork, map[string]string{
		"name": "Volt", "symbol": "VLT", "supply": "1000",
	}); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	_, err := f.exec.Confirm(ctx, TopicCreateToken, "user-1", &recorder{})
	if xerrors.CodeOf(err) != CodeInsufficientBalance {
		t.Fatalf("code = %s, want INSUFFICIENT_BALANCE", xerrors.CodeOf(err))
	}
	coded, ok := xerrors.From(err)
	if !ok {
		t.Fatalf("error %v is not coded", err)
	}
	meta := coded.Metadata()
	if meta["required"] != "2000" || meta["available"] != "1000" {
		t.Fatalf("metadata = %v", meta)
	}
	if stub.broadcastCalls != 0 {
		t.Fatal("broadcast must not be called when balance gate fails")
	}
}

func TestConfirmDuplicatePair(t *testing.T) {
	stub := newStubChain()
	existing := common.HexToAddress("0x2222222222222222222222222222222222222222").Hex()
	output := make([]byte, 32)
	copy(output[12:], common.HexToAddress(existing).Bytes())
	stub.readOutput = output
	f := newFixture(t, stub)
	f.createWallet(t, "user-1")
	ctx := context.Background()

	if _, err := f.exec.Propose(ctx, TopicCreatePair, "user-1", testNetwork, map[string]string{
		"token": testToken,
	}); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	_, err := f.exec.Confirm(ctx, TopicCreatePair, "user-1", &recorder{})
	if xerrors.CodeOf(err) != CodePairExists {
		t.Fatalf("code = %s, want PAIR_EXISTS", xerrors.CodeOf(err))
	}
	coded, _ := xerrors.From(err)
	if got := coded.Metadata()["pair_address"]; got != existing {
		t.Fatalf("pair_address = %q, want %q", got, existing)
	}
	// 既不预估 gas 也不广播。
	if stub.estimateCalls != 0 || stub.broadcastCalls != 0 {
		t.Fatalf("estimate=%d broadcast=%d, want 0/0", stub.estimateCalls, stub.broadcastCalls)
	}
}

func TestCancelClearsStage(t *testing.T) {
	f := newFixture(t, newStubChain())
	f.createWallet(t, "user-1")
	ctx := context.Background()

	if _, err := f.exec.Propose(ctx, TopicCreateToken, "user-1", testNetwork, map[string]string{
		"name": "Volt", "symbol": "VLT", "supply": "1k",
	}); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if err := f.exec.Cancel(ctx, TopicCreateToken, "user-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if f.chain.broadcastCalls != 0 || f.chain.estimateCalls != 0 {
		t.Fatal("cancel must not touch the chain")
	}
	if _, err := f.exec.Confirm(ctx, TopicCreateToken, "user-1", &recorder{}); !errors.Is(err, stage.ErrStageExpired) {
		t.Fatalf("confirm after cancel err = %v, want ErrStageExpired", err)
	}
}

func TestConfirmWithoutWallet(t *testing.T) {
	f := newFixture(t, newStubChain())
	ctx := context.Background()

	if _, err := f.exec.Propose(ctx, TopicCreateToken, "user-1", testNetwork, map[string]string{
		"name": "Volt", "symbol": "VLT", "supply": "1k",
	}); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := f.exec.Confirm(ctx, TopicCreateToken, "user-1", &recorder{}); !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Fatalf("err = %v, want ErrWalletNotFound", err)
	}
}

func TestProposeRejectsUnknownNetwork(t *testing.T) {
	f := newFixture(t, newStubChain())
	_, err := f.exec.Propose(context.Background(), TopicCreateToken, "user-1", "mainnet", map[string]string{
		"name": "Volt", "symbol": "VLT", "supply": "1k",
	})
	if xerrors.CodeOf(err) != chain.CodeUnsupportedNetwork {
		t.Fatalf("code = %s, want UNSUPPORTED_NETWORK", xerrors.CodeOf(err))
	}
}

func TestProposeOverwritesPreviousStage(t *testing.T) {
	f := newFixture(t, newStubChain())
	ctx := context.Background()

	if _, err := f.exec.Propose(ctx, TopicCreateToken, "user-1", testNetwork, map[string]string{
		"name": "First", "symbol": "AAA", "supply": "1k",
	}); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := f.exec.Propose(ctx, TopicCreateToken, "user-1", testNetwork, map[string]string{
		"name": "Second", "symbol": "BBB", "supply": "2k",
	}); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	staged, err := f.exec.Peek(ctx, TopicCreateToken, "user-1")
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if staged.Payload["symbol"] != "BBB" || staged.Payload["supply"] != "2000" {
		t.Fatalf("staged payload = %v, want the latest proposal", staged.Payload)
	}
}

func TestConfirmAddLiquiditySendsValue(t *testing.T) {
	stub := newStubChain()
	f := newFixture(t, stub)
	f.createWallet(t, "user-1")
	ctx := context.Background()

	if _, err := f.exec.Propose(ctx, TopicAddLiquidityETH, "user-1", testNetwork, map[string]string{
		"token":        testToken,
		"token_amount": "500",
		"eth_amount":   "0.25",
	}); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := f.exec.Confirm(ctx, TopicAddLiquidityETH, "user-1", &recorder{}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if f.chain.lastCall.To != testRouter {
		t.Fatalf("call target = %s, want router", f.chain.lastCall.To)
	}
	wantValue := mustBig("250000000000000000")
	if f.chain.lastCall.Value == nil || f.chain.lastCall.Value.Cmp(wantValue) != 0 {
		t.Fatalf("call value = %v, want %s wei", f.chain.lastCall.Value, wantValue)
	}
}

func TestConfirmReceiptTimeoutPropagates(t *testing.T) {
	stub := newStubChain()
	stub.awaitErr = xerrors.New(chain.CodeReceiptTimeout, "超时未观察到交易回执",
		xerrors.WithMetadata("tx_hash", stub.broadcastHash))
	f := newFixture(t, stub)
	f.createWallet(t, "user-1")
	ctx := context.Background()

	if _, err := f.exec.Propose(ctx, TopicCreateToken, "user-1", testNetwork, map[string]string{
		"name": "Volt", "symbol": "VLT", "supply": "1k",
	}); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	_, err := f.exec.Confirm(ctx, TopicCreateToken, "user-1", &recorder{})
	if xerrors.CodeOf(err) != chain.CodeReceiptTimeout {
		t.Fatalf("code = %s, want RECEIPT_TIMEOUT", xerrors.CodeOf(err))
	}
	// 结果未知也只广播一次，绝不自动重发。
	if stub.broadcastCalls != 1 {
		t.Fatalf("broadcast called %d times, want 1", stub.broadcastCalls)
	}
}
