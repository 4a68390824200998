package ledger

import "fmt"

// Account is the holding account that currently custodies a batch.
type Account uint8

const (
	AcctAllocHold Account = iota // jurisdiction allocation holding (undistributed budget)
	AcctAnnualAllocHold          // annual allocation awaiting start-of-year distribution
	AcctAuctHold                 // auction holding (consigned + state-owned lots)
	AcctLimitedUse               // limited use holding (consigned utility allowances)
	AcctGeneral                  // private general holding
	AcctCompliance               // private compliance holding
	AcctReserve                  // price containment reserve (APCR)
	AcctVoluntaryReserve         // voluntary renewable electricity reserve
	AcctRetirement               // terminal sink
)

func (a Account) String() string {
	switch a {
	case AcctAllocHold:
		return "alloc_hold"
	case AcctAnnualAllocHold:
		return "ann_alloc_hold"
	case AcctAuctHold:
		return "auct_hold"
	case AcctLimitedUse:
		return "limited_use"
	case AcctGeneral:
		return "gen_acct"
	case AcctCompliance:
		return "comp_acct"
	case AcctReserve:
		return "APCR_acct"
	case AcctVoluntaryReserve:
		return "VRE_acct"
	case AcctRetirement:
		return "retirement"
	default:
		return "unknown"
	}
}

// Jurisdiction identifies the issuing program. Ontario appears only for
// net-flow bookkeeping after the brief 2018 linkage.
type Jurisdiction uint8

const (
	CA Jurisdiction = iota
	QC
	ON
)

func (j Jurisdiction) String() string {
	switch j {
	case CA:
		return "CA"
	case QC:
		return "QC"
	case ON:
		return "ON"
	default:
		return "unknown"
	}
}

// AuctionType distinguishes the auction cycle a batch belongs to.
type AuctionType uint8

const (
	AuctionNA AuctionType = iota
	AuctionCurrent
	AuctionAdvance
	AuctionReserve
)

func (a AuctionType) String() string {
	switch a {
	case AuctionNA:
		return "n/a"
	case AuctionCurrent:
		return "current"
	case AuctionAdvance:
		return "advance"
	case AuctionReserve:
		return "reserve"
	default:
		return "unknown"
	}
}

// Category is the instrument category an allowance was carved from.
type Category uint8

const (
	CatCap Category = iota // undifferentiated budget, pre-carving
	CatStateOwned          // state-owned auction supply
	CatIndustrialAlloc
	CatUtilityAlloc
	CatGasAlloc
	CatConsign // consigned utility allowances
	CatAPCR
	CatVRE
	CatEarlyAction
)

func (c Category) String() string {
	switch c {
	case CatCap:
		return "cap"
	case CatStateOwned:
		return "state_owned"
	case CatIndustrialAlloc:
		return "industrial_alloc"
	case CatUtilityAlloc:
		return "elec_alloc"
	case CatGasAlloc:
		return "nat_gas_alloc"
	case CatConsign:
		return "consign"
	case CatAPCR:
		return "APCR"
	case CatVRE:
		return "VRE"
	case CatEarlyAction:
		return "early_action"
	default:
		return "unknown"
	}
}

// Newness tracks a batch's provenance within the auction cycle.
type Newness uint8

const (
	NewnessNA Newness = iota
	NewnessNew
	NewnessReintro
	NewnessRedes
)

func (n Newness) String() string {
	switch n {
	case NewnessNA:
		return "n/a"
	case NewnessNew:
		return "new"
	case NewnessReintro:
		return "reintro"
	case NewnessRedes:
		return "redes"
	default:
		return "unknown"
	}
}

// Status is a batch's position in the auction cycle.
type Status uint8

const (
	StatusNA Status = iota
	StatusNotAvailable
	StatusAvailable
	StatusSold
	StatusUnsold
	StatusDeficit
)

func (s Status) String() string {
	switch s {
	case StatusNA:
		return "n/a"
	case StatusNotAvailable:
		return "not_avail"
	case StatusAvailable:
		return "avail"
	case StatusSold:
		return "sold"
	case StatusUnsold:
		return "unsold"
	case StatusDeficit:
		return "deficit"
	default:
		return "unknown"
	}
}

// Vintage sentinels for non-vintage pools. Real vintages are calendar years
// 2013..2030; the sentinels sort after every real vintage.
const (
	VintageEarlyAction = 2198
	VintageAPCR        = 2199
)

// Units is the constant quantity unit carried by every batch.
const Units = "MMTCO2e"

// Key is the classification tuple of an instrument batch. It is the composite
// primary key of the ledger: at any point in time no two rows share a Key.
type Key struct {
	Acct        Account
	Juris       Jurisdiction
	AuctType    AuctionType
	Cat         Category
	Vintage     int
	New         Newness
	Stat        Status
	DateLevel   Quarter // the quarter a lot is (or was) offered at auction
	FirstUnsold Quarter // first quarter the lot went unsold; NeverUnsold if never
	LastUnsold  Quarter // most recent unsold quarter; NeverUnsold if never
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/v%d/%s/%s/%s",
		k.Juris, k.Acct, k.AuctType, k.Cat, k.Vintage, k.New, k.Stat, k.DateLevel)
}

// Less imposes a deterministic total order on keys. Selections are returned in
// this order so that greedy draws (earliest vintage first) are reproducible.
func (k Key) Less(o Key) bool {
	if k.Vintage != o.Vintage {
		return k.Vintage < o.Vintage
	}
	if k.Juris != o.Juris {
		return k.Juris < o.Juris
	}
	if k.Acct != o.Acct {
		return k.Acct < o.Acct
	}
	if k.AuctType != o.AuctType {
		return k.AuctType < o.AuctType
	}
	if k.Cat != o.Cat {
		return k.Cat < o.Cat
	}
	if k.New != o.New {
		return k.New < o.New
	}
	if k.Stat != o.Stat {
		return k.Stat < o.Stat
	}
	if k.DateLevel != o.DateLevel {
		return k.DateLevel.Before(o.DateLevel)
	}
	if k.FirstUnsold != o.FirstUnsold {
		return k.FirstUnsold.Before(o.FirstUnsold)
	}
	return k.LastUnsold.Before(o.LastUnsold)
}
