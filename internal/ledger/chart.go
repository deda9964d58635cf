package ledger

// Class is one of the five root accounting classes.
type Class string

const (
	ClassAsset     Class = "asset"
	ClassLiability Class = "liability"
	ClassEquity    Class = "equity"
	ClassRevenue   Class = "revenue"
	ClassExpense   Class = "expense"
)

// Normal identifies which leg kind increases an account's balance.
type Normal uint8

const (
	DebitNormal Normal = iota
	CreditNormal
)

// Classification is the result of Chart.Classify: the account's root
// class, display subgroup, and whether it is credit-normal.
type Classification struct {
	Class        Class
	SubGroup     string
	CreditNormal bool
}

// chartRule binds one address prefix to its classification. The table below
// is the entire Chart of Accounts: classification is a pure function of the
// address class prefix, never of the address's history, balance, or symbol —
// the registry neither infers nor overrides this.
//
// The mapping resolves an ambiguity left implicit in the model: a
// Transfer always emits Debit(from)+Credit(to), and a worked single-transfer
// scenario requires the sender ("vault:issuance") to *decrease* on
// its Debit leg and the receiver ("wallet:alice") to *increase* on its
// Credit leg. That is only consistent if both wallet and vault addresses
// are credit-normal — i.e. classified as Liability, the standard
// "deposits-are-liabilities" ledger convention for a token issuer: the
// ledger owes circulating/vaulted balances to whoever holds the address,
// so issuing a token credits a liability and retiring one debits it. See
// DESIGN.md for the full derivation. ClassAsset exists in the enum for
// completeness (a future asset-reserve account class) but no address
// prefix currently resolves to it.
var chartRules = map[AddressClass]chartRule{
	ClassWallet:      {ClassLiability, "customer_wallet", true},
	ClassVault:       {ClassLiability, "system_vault", true},
	ClassReceita:     {ClassRevenue, "fee_revenue", true},
	ClassDespesa:     {ClassExpense, "operating_expense", false},
	ClassCompensacao: {ClassEquity, "issuance_equity", true},
}

type chartRule struct {
	class        Class
	subGroup     string
	creditNormal bool
}

// Chart classifies addresses into a Class/SubGroup/natural-balance-side
// triple (C3). It holds no state and is safe for concurrent use.
type Chart struct{}

func NewChart() *Chart { return &Chart{} }

// Classify resolves addr's class prefix to its Classification. An address
// whose class prefix is not one of the five known tags returns
// ErrUnknownAccountClass.
func (c *Chart) Classify(addr Address) (Classification, error) {
	rule, ok := chartRules[addr.Class()]
	if !ok {
		return Classification{}, ErrUnknownAccountClass
	}
	return Classification{Class: rule.class, SubGroup: rule.subGroup, CreditNormal: rule.creditNormal}, nil
}

// Normal returns the natural balance side for a classification.
func (cl Classification) Normal() Normal {
	if cl.CreditNormal {
		return CreditNormal
	}
	return DebitNormal
}

// ValidateAddress reports whether addr both parses and resolves to a known
// account class.
func (c *Chart) ValidateAddress(addr Address) error {
	if _, err := ParseAddress(addr.String()); err != nil {
		return err
	}
	_, err := c.Classify(addr)
	return err
}
