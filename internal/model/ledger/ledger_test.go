package ledger

import "testing"

func TestParsePaymentMethod(t *testing.T) {
	cases := map[string]PaymentMethod{
		"pix":     PaymentPix,
		"Crédito": PaymentCredit,
		"debit":   PaymentDebit,
		"CASH":    PaymentCash,
		"ted":     PaymentTransfer,
	}
	for raw, want := range cases {
		got, ok := ParsePaymentMethod(raw)
		if !ok || got != want {
			t.Fatalf("ParsePaymentMethod(%q) = %q, %v; want %q", raw, got, ok, want)
		}
	}
	if _, ok := ParsePaymentMethod("boleto"); ok {
		t.Fatal("expected unknown payment method to be rejected")
	}
}

func TestParseKind(t *testing.T) {
	if k, ok := ParseKind("despesa"); !ok || k != Expense {
		t.Fatalf("ParseKind(despesa) = %q, %v", k, ok)
	}
	if k, ok := ParseKind("INCOME"); !ok || k != Income {
		t.Fatalf("ParseKind(INCOME) = %q, %v", k, ok)
	}
	if _, ok := ParseKind("transfer"); ok {
		t.Fatal("expected transfer to be rejected as a kind")
	}
}
