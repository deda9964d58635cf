package ledger

import "testing"

func TestChartClassify(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		class   Class
		credit  bool
		wantErr bool
	}{
		{"wallet", "wallet:user:alice", ClassLiability, true, false},
		{"vault", "vault:issuance:main", ClassLiability, true, false},
		{"receita", "receita:fees:protocol", ClassRevenue, true, false},
		{"despesa", "despesa:slashing:pool", ClassExpense, false, false},
		{"compensacao", "compensacao:burn:sink", ClassEquity, true, false},
		{"unknown prefix", "foo:bar:baz", "", false, true},
	}

	c := NewChart()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := ParseAddress(tc.addr)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected parse error for %q", tc.addr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			cl, err := c.Classify(addr)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if cl.Class != tc.class {
				t.Fatalf("class=%v want %v", cl.Class, tc.class)
			}
			if cl.CreditNormal != tc.credit {
				t.Fatalf("creditNormal=%v want %v", cl.CreditNormal, tc.credit)
			}
		})
	}
}

func TestParseAddressShape(t *testing.T) {
	if _, err := ParseAddress("wallet:onlysegment"); err == nil {
		t.Fatalf("expected error for missing identifier segment")
	}
	if _, err := ParseAddress(""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
