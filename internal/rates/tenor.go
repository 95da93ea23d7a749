package rates

// Tenor identifies the settlement period a caución rate is quoted for.
type Tenor string

const (
	TenorD1 Tenor = "D1"
	TenorD2 Tenor = "D2"
	TenorD3 Tenor = "D3"
	TenorD7 Tenor = "D7"
)

// AllTenors lists tenors in display order.
var AllTenors = []Tenor{TenorD1, TenorD2, TenorD3, TenorD7}

// Label returns the human-facing settlement period.
func (t Tenor) Label() string {
	switch t {
	case TenorD1:
		return "24hs"
	case TenorD2:
		return "48hs"
	case TenorD3:
		return "72hs"
	case TenorD7:
		return "7 días"
	}
	return string(t)
}

// Valid reports whether t is one of the known tenors.
func (t Tenor) Valid() bool {
	switch t {
	case TenorD1, TenorD2, TenorD3, TenorD7:
		return true
	}
	return false
}
