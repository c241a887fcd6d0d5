package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"OxVenta-Custody/sdk/go/oxventa"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/wallets", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(oxventa.CreatedWallet{
			Wallet: oxventa.Wallet{
				UUID:          "wallet-demo",
				UserUUID:      "user-demo",
				NetworkFamily: "evm",
				Address:       "0x00000000000000000000000000000000000000aa",
			},
			PlaintextKey: "deadbeef",
		})
	})
	mux.HandleFunc("/api/v1/actions/propose", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(oxventa.Proposal{
			Summary:      "Create token Volt (VLT) with a total supply of 1000000",
			ConfirmToken: "confirm-demo",
			CancelToken:  "cancel-demo",
		})
	})
	mux.HandleFunc("/api/v1/actions/decide", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Transaction submitted: 0xfeed\n"))
		_, _ = w.Write([]byte("Pending confirmation...\n"))
		_, _ = w.Write([]byte("tx 0xfeed, block 42, gas used 84000\n"))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := oxventa.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := client.CreateWallet(ctx, oxventa.CreateWalletRequest{
		UserUUID: "user-demo", NetworkFamily: "evm", Name: "demo",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("wallet created at %s\n", created.Wallet.Address)

	proposal, err := client.Propose(ctx, oxventa.ProposeRequest{
		Topic:    "create_token",
		UserUUID: "user-demo",
		Network:  "sepolia",
		Payload:  map[string]string{"name": "Volt", "symbol": "VLT", "supply": "1m"},
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("staged: %s\n", proposal.Summary)

	decision, err := client.Decide(ctx, proposal.ConfirmToken)
	if err != nil {
		panic(err)
	}
	for _, line := range decision.Progress {
		fmt.Println(line)
	}
}
