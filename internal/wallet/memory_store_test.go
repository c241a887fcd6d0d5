package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestInsertRejectsDuplicatePair(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &Wallet{UUID: "w-1", UserUUID: "user-1", NetworkFamily: FamilyEVM, Address: "0xaa"}
	if err := store.Insert(ctx, first); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	second := &Wallet{UUID: "w-2", UserUUID: "user-1", NetworkFamily: FamilyEVM, Address: "0xbb"}
	if err := store.Insert(ctx, second); !errors.Is(err, ErrWalletExists) {
		t.Fatalf("duplicate insert error = %v, want ErrWalletExists", err)
	}

	// 不同链家族不冲突。
	solana := &Wallet{UUID: "w-3", UserUUID: "user-1", NetworkFamily: FamilySolana, Address: "So1"}
	if err := store.Insert(ctx, solana); err != nil {
		t.Fatalf("Insert solana: %v", err)
	}
}

func TestConcurrentInsertKeepsSingleWallet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			record := &Wallet{
				UUID:          fmt.Sprintf("w-%d", n),
				UserUUID:      "user-1",
				NetworkFamily: FamilyEVM,
				Address:       fmt.Sprintf("0x%02x", n),
			}
			results <- store.Insert(ctx, record)
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrWalletExists):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("successful inserts = %d, want exactly 1", succeeded)
	}

	record, err := store.Find(ctx, "user-1", FamilyEVM)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if record == nil || record.Address == "" {
		t.Fatalf("surviving record = %+v", record)
	}
}

func TestFindMissingWallet(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Find(context.Background(), "ghost", FamilyEVM); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("error = %v, want ErrWalletNotFound", err)
	}
}
