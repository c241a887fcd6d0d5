package action

import (
	"testing"

	xerrors "OxVenta-Custody/internal/errors"
)

func TestTokenRoundTrip(t *testing.T) {
	token := EncodeToken(VerbConfirm, TopicCreateToken, "user-1")
	verb, topic, userID, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if verb != VerbConfirm || topic != TopicCreateToken || userID != "user-1" {
		t.Fatalf("ParseToken = (%s, %s, %s)", verb, topic, userID)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	bad := []string{
		"",
		"%%%not-base64%%%",
		EncodeToken("detonate", TopicCreateToken, "user-1"),
		EncodeToken(VerbCancel, "", "user-1"),
	}
	for _, token := range bad {
		if _, _, _, err := ParseToken(token); err == nil {
			t.Errorf("ParseToken(%q) should fail", token)
		}
	}
}

func TestCreateTokenValidate(t *testing.T) {
	handler := NewCreateToken()

	normalized, summary, err := handler.Validate(map[string]string{
		"name": "Volt", "symbol": "vlt", "supply": "25k",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if normalized["symbol"] != "VLT" {
		t.Fatalf("symbol = %q, want upper-cased", normalized["symbol"])
	}
	if normalized["supply"] != "25000" {
		t.Fatalf("supply = %q, want expanded shorthand", normalized["supply"])
	}
	if summary == "" {
		t.Fatal("summary must not be empty")
	}

	bad := []map[string]string{
		{"name": "", "symbol": "VLT", "supply": "1k"},
		{"name": "Volt", "symbol": "", "supply": "1k"},
		{"name": "Volt", "symbol": "VLT", "supply": "zero"},
		{"name": "Volt", "symbol": "TOOLONGSYMBOL", "supply": "1k"},
	}
	for _, payload := range bad {
		if _, _, err := handler.Validate(payload); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
			t.Errorf("Validate(%v) code = %s, want INVALID_ARGUMENT", payload, xerrors.CodeOf(err))
		}
	}
}

func TestCreatePairValidate(t *testing.T) {
	handler := NewCreatePair()

	normalized, _, err := handler.Validate(map[string]string{"token": testToken})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if normalized["token"] == "" {
		t.Fatal("token missing from normalized payload")
	}

	if _, _, err := handler.Validate(map[string]string{"token": "not-an-address"}); err == nil {
		t.Fatal("bad address should fail validation")
	}
}

func TestAddLiquidityValidate(t *testing.T) {
	handler := NewAddLiquidityETH()

	if _, _, err := handler.Validate(map[string]string{
		"token": testToken, "token_amount": "500", "eth_amount": "0.25",
	}); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	bad := []map[string]string{
		{"token": "nope", "token_amount": "500", "eth_amount": "0.25"},
		{"token": testToken, "token_amount": "", "eth_amount": "0.25"},
		{"token": testToken, "token_amount": "500", "eth_amount": "-1"},
		{"token": testToken, "token_amount": "1e5", "eth_amount": "0.25"},
	}
	for _, payload := range bad {
		if _, _, err := handler.Validate(payload); err == nil {
			t.Errorf("Validate(%v) should fail", payload)
		}
	}
}
