package config

// RawColumn names one expected raw input column and whether it is textual.
type RawColumn struct {
	Name string
	Text bool
}

// RawLayout returns the canonical ordered raw column layout. The feature
// engineering engine rebuilds every batch into this layout before running
// its stages so output column order is stable across differently-shaped
// inputs.
func (c TransformConfig) RawLayout() []RawColumn {
	cols := []RawColumn{
		{Name: c.IDColumn},
		{Name: c.TimeColumn},
		{Name: c.AmountColumn},
		{Name: "ProductCD", Text: true},
		{Name: "card1"},
		{Name: "card2"},
		{Name: "card3"},
		{Name: "card4", Text: true},
		{Name: "card5"},
		{Name: "card6", Text: true},
		{Name: "addr1"},
		{Name: "addr2"},
		{Name: "dist1"},
		{Name: "dist2"},
		{Name: "P_emaildomain", Text: true},
		{Name: "R_emaildomain", Text: true},
	}
	for _, name := range seq("C", 1, 14) {
		cols = append(cols, RawColumn{Name: name})
	}
	for _, name := range seq("D", 1, 15) {
		cols = append(cols, RawColumn{Name: name})
	}
	for _, name := range seq("M", 1, 9) {
		cols = append(cols, RawColumn{Name: name, Text: true})
	}
	for _, name := range c.AllVColumns {
		cols = append(cols, RawColumn{Name: name})
	}
	for _, name := range c.NumericIdentityColumns {
		cols = append(cols, RawColumn{Name: name})
	}
	for _, name := range seqPadded("id_", 12, 38) {
		cols = append(cols, RawColumn{Name: name, Text: true})
	}
	cols = append(cols,
		RawColumn{Name: "DeviceType", Text: true},
		RawColumn{Name: "DeviceInfo", Text: true},
	)
	return cols
}
