package flake

// Order names one of the index sort orders. Each order is a total
// order over flakes: after the leading components, every remaining
// component still participates so that distinct flakes never compare
// equal in any index.
type Order string

// The five sort orders maintained per database version.
const (
	// OrderSPOT sorts subject, predicate, object, t: subject-centric
	// scans ("everything about this entity").
	OrderSPOT Order = "spot"
	// OrderPSOT sorts predicate, subject, object, t: predicate-centric
	// scans across subjects.
	OrderPSOT Order = "psot"
	// OrderPOST sorts predicate, object, subject, t: value lookups for
	// a known predicate, e.g. IRI-to-identifier resolution.
	OrderPOST Order = "post"
	// OrderOPST sorts object, predicate, subject, t: reverse-reference
	// lookups. Holds only reference-typed statements.
	OrderOPST Order = "opst"
	// OrderTSPO sorts t, subject, predicate, object: per-transaction
	// history scans.
	OrderTSPO Order = "tspo"
)

// Orders lists every sort order in index-build sequence.
var Orders = []Order{OrderSPOT, OrderPSOT, OrderPOST, OrderOPST, OrderTSPO}

// Cmp is a three-way comparison over flakes.
type Cmp func(a, b Flake) int

// cmpTail breaks remaining ties so every order is total: datatype,
// then t, then op, then list position.
func cmpTail(a, b Flake) int {
	if c := cmpOrdered(a.Datatype, b.Datatype); c != 0 {
		return c
	}
	// Newer transactions (more negative t) sort first within a key.
	if c := cmpOrdered(a.T, b.T); c != 0 {
		return c
	}
	if a.Op != b.Op {
		if a.Op {
			return 1
		}
		return -1
	}
	return cmpOrdered(metaIndex(a), metaIndex(b))
}

// CmpSPOT compares subject, predicate, object, then the tail.
func CmpSPOT(a, b Flake) int {
	if c := cmpOrdered(a.Subject, b.Subject); c != 0 {
		return c
	}
	if c := cmpOrdered(a.Predicate, b.Predicate); c != 0 {
		return c
	}
	if c := a.Object.Compare(b.Object); c != 0 {
		return c
	}
	return cmpTail(a, b)
}

// CmpPSOT compares predicate, subject, object, then the tail.
func CmpPSOT(a, b Flake) int {
	if c := cmpOrdered(a.Predicate, b.Predicate); c != 0 {
		return c
	}
	if c := cmpOrdered(a.Subject, b.Subject); c != 0 {
		return c
	}
	if c := a.Object.Compare(b.Object); c != 0 {
		return c
	}
	return cmpTail(a, b)
}

// CmpPOST compares predicate, object, subject, then the tail.
func CmpPOST(a, b Flake) int {
	if c := cmpOrdered(a.Predicate, b.Predicate); c != 0 {
		return c
	}
	if c := a.Object.Compare(b.Object); c != 0 {
		return c
	}
	if c := cmpOrdered(a.Subject, b.Subject); c != 0 {
		return c
	}
	return cmpTail(a, b)
}

// CmpOPST compares object, predicate, subject, then the tail.
func CmpOPST(a, b Flake) int {
	if c := a.Object.Compare(b.Object); c != 0 {
		return c
	}
	if c := cmpOrdered(a.Predicate, b.Predicate); c != 0 {
		return c
	}
	if c := cmpOrdered(a.Subject, b.Subject); c != 0 {
		return c
	}
	return cmpTail(a, b)
}

// CmpTSPO compares t, subject, predicate, object, then the tail.
func CmpTSPO(a, b Flake) int {
	if c := cmpOrdered(a.T, b.T); c != 0 {
		return c
	}
	if c := cmpOrdered(a.Subject, b.Subject); c != 0 {
		return c
	}
	if c := cmpOrdered(a.Predicate, b.Predicate); c != 0 {
		return c
	}
	if c := a.Object.Compare(b.Object); c != 0 {
		return c
	}
	return cmpTail(a, b)
}

// Comparator returns the comparison function for an order.
func (o Order) Comparator() Cmp {
	switch o {
	case OrderSPOT:
		return CmpSPOT
	case OrderPSOT:
		return CmpPSOT
	case OrderPOST:
		return CmpPOST
	case OrderOPST:
		return CmpOPST
	case OrderTSPO:
		return CmpTSPO
	default:
		return CmpSPOT
	}
}
