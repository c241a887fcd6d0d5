package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"OxVenta-Custody/internal/action"
	"OxVenta-Custody/internal/chain"
	"OxVenta-Custody/internal/confirm"
	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/observability/metrics"
	"OxVenta-Custody/internal/stage"
	"OxVenta-Custody/internal/wallet"
)

// Server 对外暴露托管钱包与暂存操作的 REST 接口。
type Server struct {
	addr     string
	vault    *wallet.Vault
	executor *action.Executor
	producer confirm.Producer
}

// NewServer 构造 API 服务实例。producer 为空时确认请求走同步路径，
// 执行进度以文本行的形式流式返回。
func NewServer(addr string, vault *wallet.Vault, executor *action.Executor, producer confirm.Producer) *Server {
	return &Server{addr: addr, vault: vault, executor: executor, producer: producer}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/wallets", instrument("wallets", s.handleWallets))
	mux.HandleFunc("/api/v1/wallets/address", instrument("wallet_address", s.handleWalletAddress))
	mux.HandleFunc("/api/v1/actions/propose", instrument("propose", s.handlePropose))
	mux.HandleFunc("/api/v1/actions/decide", instrument("decide", s.handleDecide))
	mux.HandleFunc("/api/v1/actions/pending", instrument("pending", s.handlePending))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type createWalletRequest struct {
	UserUUID      string `json:"user_uuid"`
	NetworkFamily string `json:"network_family"`
	Name          string `json:"name"`
}

type createWalletResponse struct {
	Wallet       *wallet.Wallet `json:"wallet"`
	PlaintextKey string         `json:"plaintext_key"`
}

func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req createWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	family, err := wallet.ParseFamily(req.NetworkFamily)
	if err != nil {
		writeError(w, err)
		return
	}
	created, err := s.vault.Create(r.Context(), req.UserUUID, family, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	// 明文私钥只在这一个响应里出现，服务端不会再返回第二次。
	writeJSON(w, http.StatusCreated, createWalletResponse{
		Wallet:       created.Wallet,
		PlaintextKey: created.PlaintextKey,
	})
}

func (s *Server) handleWalletAddress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	family, err := wallet.ParseFamily(r.URL.Query().Get("network_family"))
	if err != nil {
		writeError(w, err)
		return
	}
	address, err := s.vault.Address(r.Context(), r.URL.Query().Get("user_uuid"), family)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": address})
}

type proposeRequest struct {
	Topic    string            `json:"topic"`
	UserUUID string            `json:"user_uuid"`
	Network  string            `json:"network"`
	Payload  map[string]string `json:"payload"`
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	proposal, err := s.executor.Propose(r.Context(), req.Topic, req.UserUUID, req.Network, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

type decideRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	verb, topic, userID, err := action.ParseToken(req.Token)
	if err != nil {
		writeError(w, err)
		return
	}

	if verb == action.VerbCancel {
		if err := s.executor.Cancel(r.Context(), topic, userID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		return
	}

	if s.producer != nil {
		job := confirm.Job{Topic: topic, UserUUID: userID, Verb: verb}
		if err := s.producer.Publish(r.Context(), job); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	s.confirmStreaming(w, r, topic, userID)
}

// confirmStreaming 同步执行确认并把进度逐行推给调用方。一旦有进度
// 写出，响应状态就定格在 200，后续错误只能以文本行收尾。
func (s *Server) confirmStreaming(w http.ResponseWriter, r *http.Request, topic, userID string) {
	flusher, _ := w.(http.Flusher)
	streamed := false
	report := action.ReporterFunc(func(message string) {
		if !streamed {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			streamed = true
		}
		_, _ = w.Write([]byte(message + "\n"))
		if flusher != nil {
			flusher.Flush()
		}
	})

	if _, err := s.executor.Confirm(r.Context(), topic, userID, report); err != nil {
		if streamed {
			_, _ = w.Write([]byte(confirm.UserMessage(err) + "\n"))
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		writeError(w, err)
	}
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	act, err := s.executor.Peek(r.Context(), r.URL.Query().Get("topic"), r.URL.Query().Get("user_uuid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Code: string(xerrors.CodeUnknown), Message: err.Error()}
	if coded, ok := xerrors.From(err); ok {
		body.Code = string(coded.Code())
		body.Message = coded.Message()
		body.Metadata = coded.Metadata()
		status = httpStatusOf(coded.Code())
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func httpStatusOf(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, chain.CodeUnsupportedNetwork:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, wallet.CodeWalletNotFound, stage.CodeStageExpired:
		return http.StatusNotFound
	case xerrors.CodeConflict, wallet.CodeWalletExists, action.CodePairExists:
		return http.StatusConflict
	case action.CodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	case chain.CodeReceiptTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// instrument 记录每个端点的请求计数与时延。
func instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
