package features

import "fraudlens/internal/frame"

// cardStage coerces card fields to categorical strings and derives
// card+address and card+product fingerprints with their counts.
func (e *Engine) cardStage(f *frame.Frame, _ Options) error {
	n := f.NumRows()

	// Card fields become categorical: missing → "-1", numerics rendered
	// without trailing decimals. Replaces the raw columns in place.
	cardStrs := make(map[string][]string, len(e.cfg.CardColumns))
	for _, col := range e.cfg.CardColumns {
		vals := e.tokens(f, col, "-1")
		f.AddString(col, vals)
		cardStrs[col] = vals
	}

	addr1 := e.tokens(f, "addr1", "0")
	addr2 := e.tokens(f, "addr2", "0")

	join := func(a, b []string, sep string) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = a[i] + sep + b[i]
		}
		return out
	}

	f.AddString("card1_addrs1", join(cardStrs["card1"], addr1, "-"))
	f.AddString("card1_addrs2", join(cardStrs["card1"], addr2, "-"))
	f.AddString("card2_addrs1", join(cardStrs["card2"], addr1, "-"))

	// Product code forward-filled before joining; leading missing rows
	// keep the missing token.
	pcd := forwardFill(e.tokens(f, "ProductCD", ""), e.cfg.MissingToken)
	f.AddString("card1_ProductCD", join(cardStrs["card1"], pcd, "_"))
	f.AddString("card2_ProductCD", join(cardStrs["card2"], pcd, "_"))

	cardID := e.tokens(f, "card_id", "nan")
	idCounts := freqCounts(cardID)
	cardIDCount := make([]float64, n)
	for i, k := range cardID {
		cardIDCount[i] = idCounts[k]
	}
	f.AddFloat("card_id_count", cardIDCount)

	addrCounts := freqCounts(addr1)
	cardAddCount := make([]float64, n)
	for i, k := range addr1 {
		cardAddCount[i] = addrCounts[k]
	}
	f.AddFloat("card_add_count", cardAddCount)

	return nil
}

// forwardFill replaces empty values with the previous non-empty value;
// leading empties get the fallback token.
func forwardFill(vals []string, fallback string) []string {
	out := make([]string, len(vals))
	last := fallback
	for i, v := range vals {
		if v == "" {
			out[i] = last
			continue
		}
		out[i] = v
		last = v
	}
	return out
}
