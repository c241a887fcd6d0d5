package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"

	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/keycipher"
)

func newTestVault(t *testing.T, secret string) *Vault {
	t.Helper()
	cipher, err := keycipher.New(secret)
	if err != nil {
		t.Fatalf("keycipher.New: %v", err)
	}
	return NewVault(NewMemoryStore(), cipher)
}

func TestVaultCreateEVM(t *testing.T) {
	vault := newTestVault(t, "unit-test-secret")
	ctx := context.Background()

	created, err := vault.Create(ctx, "user-1", FamilyEVM, "trading")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(created.Wallet.Address, "0x") || len(created.Wallet.Address) != 42 {
		t.Fatalf("unexpected evm address %q", created.Wallet.Address)
	}
	if created.PlaintextKey == "" {
		t.Fatal("plaintext key should be revealed on creation")
	}
	if created.Wallet.EncryptedKey == created.PlaintextKey {
		t.Fatal("stored key material must be encrypted")
	}

	address, err := vault.Address(ctx, "user-1", FamilyEVM)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if address != created.Wallet.Address {
		t.Fatalf("Address = %q, want %q", address, created.Wallet.Address)
	}
}

func TestVaultCreateIsPerUserPerFamily(t *testing.T) {
	vault := newTestVault(t, "unit-test-secret")
	ctx := context.Background()

	if _, err := vault.Create(ctx, "user-1", FamilyEVM, ""); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := vault.Create(ctx, "user-1", FamilyEVM, ""); !errors.Is(err, ErrWalletExists) {
		t.Fatalf("duplicate Create err = %v, want ErrWalletExists", err)
	}
	// 同一用户的另一个链家族、以及另一个用户的同一链家族都不受影响。
	if _, err := vault.Create(ctx, "user-1", FamilySolana, ""); err != nil {
		t.Fatalf("solana Create: %v", err)
	}
	if _, err := vault.Create(ctx, "user-2", FamilyEVM, ""); err != nil {
		t.Fatalf("second user Create: %v", err)
	}
}

func TestVaultSignerRoundTrip(t *testing.T) {
	vault := newTestVault(t, "unit-test-secret")
	ctx := context.Background()

	created, err := vault.Create(ctx, "user-1", FamilyEVM, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	signer, err := vault.Signer(ctx, "user-1", FamilyEVM)
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	if signer.Family() != FamilyEVM {
		t.Fatalf("Family = %q", signer.Family())
	}
	if !strings.EqualFold(signer.Address(), created.Wallet.Address) {
		t.Fatalf("signer address %q != wallet address %q", signer.Address(), created.Wallet.Address)
	}
	if _, ok := signer.(*EVMSigner); !ok {
		t.Fatalf("signer type = %T, want *EVMSigner", signer)
	}
}

func TestVaultSignerSolana(t *testing.T) {
	vault := newTestVault(t, "unit-test-secret")
	ctx := context.Background()

	created, err := vault.Create(ctx, "user-1", FamilySolana, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	signer, err := vault.Signer(ctx, "user-1", FamilySolana)
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	if signer.Address() != created.Wallet.Address {
		t.Fatalf("signer address %q != wallet address %q", signer.Address(), created.Wallet.Address)
	}
	solSigner, ok := signer.(*SolanaSigner)
	if !ok {
		t.Fatalf("signer type = %T, want *SolanaSigner", signer)
	}
	if _, err := solSigner.Sign([]byte("ping")); err != nil {
		t.Fatalf("Sign: %v", err)
	}
}

func TestVaultSignerWrongSecret(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	cipher, err := keycipher.New("secret-a")
	if err != nil {
		t.Fatalf("keycipher.New: %v", err)
	}
	if _, err := NewVault(store, cipher).Create(ctx, "user-1", FamilyEVM, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	other, err := keycipher.New("secret-b")
	if err != nil {
		t.Fatalf("keycipher.New: %v", err)
	}
	if _, err := NewVault(store, other).Signer(ctx, "user-1", FamilyEVM); xerrors.CodeOf(err) != keycipher.CodeDecryption {
		t.Fatalf("Signer err = %v, want DECRYPTION_FAILED", err)
	}
}

func TestVaultSignerMissingWallet(t *testing.T) {
	vault := newTestVault(t, "unit-test-secret")
	if _, err := vault.Signer(context.Background(), "ghost", FamilyEVM); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("Signer err = %v, want ErrWalletNotFound", err)
	}
}
