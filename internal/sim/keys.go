package sim

import "wcisim/internal/ledger"

// Key constructors for the account rows the transition function touches.
// Every fresh key starts with the never-unsold sentinel dates.

func baseKey(j ledger.Jurisdiction) ledger.Key {
	return ledger.Key{
		Juris:       j,
		AuctType:    ledger.AuctionNA,
		New:         ledger.NewnessNA,
		Stat:        ledger.StatusNA,
		FirstUnsold: ledger.NeverUnsold,
		LastUnsold:  ledger.NeverUnsold,
	}
}

// capKey is the undistributed budget row for one vintage.
func capKey(j ledger.Jurisdiction, vintage int) ledger.Key {
	k := baseKey(j)
	k.Acct = ledger.AcctAllocHold
	k.Cat = ledger.CatCap
	k.Vintage = vintage
	return k
}

// apcrKey is the jurisdiction's single reserve pool row (sentinel vintage).
func apcrKey(j ledger.Jurisdiction) ledger.Key {
	k := baseKey(j)
	k.Acct = ledger.AcctReserve
	k.AuctType = ledger.AuctionReserve
	k.Cat = ledger.CatAPCR
	k.Vintage = ledger.VintageAPCR
	return k
}

func vreKey(j ledger.Jurisdiction, vintage int) ledger.Key {
	k := baseKey(j)
	k.Acct = ledger.AcctVoluntaryReserve
	k.Cat = ledger.CatVRE
	k.Vintage = vintage
	return k
}

func earlyActionKey(j ledger.Jurisdiction) ledger.Key {
	k := baseKey(j)
	k.Acct = ledger.AcctGeneral
	k.Cat = ledger.CatEarlyAction
	k.Vintage = ledger.VintageEarlyAction
	return k
}

// ontarioKey books the net instruments Ontario's 2018 linkage left in the
// market, kept under the ON jurisdiction code inside the CA run.
func ontarioKey() ledger.Key {
	k := baseKey(ledger.ON)
	k.Acct = ledger.AcctGeneral
	k.Cat = ledger.CatCap
	k.Vintage = 2018
	return k
}

// auctionLotKey is a not-yet-available auction lot scheduled for quarter lotQ.
func auctionLotKey(j ledger.Jurisdiction, t ledger.AuctionType, cat ledger.Category, vintage int, lotQ ledger.Quarter) ledger.Key {
	k := baseKey(j)
	k.Acct = ledger.AcctAuctHold
	k.AuctType = t
	k.Cat = cat
	k.Vintage = vintage
	k.New = ledger.NewnessNew
	k.Stat = ledger.StatusNotAvailable
	k.DateLevel = lotQ
	return k
}

func limitedUseKey(j ledger.Jurisdiction, vintage int) ledger.Key {
	k := baseKey(j)
	k.Acct = ledger.AcctLimitedUse
	k.Cat = ledger.CatConsign
	k.Vintage = vintage
	return k
}

func annualAllocKey(j ledger.Jurisdiction, prog ledger.Category, vintage int) ledger.Key {
	k := baseKey(j)
	k.Acct = ledger.AcctAnnualAllocHold
	k.Cat = prog
	k.Vintage = vintage
	return k
}

func retirementKey(j ledger.Jurisdiction, vintage int) ledger.Key {
	k := baseKey(j)
	k.Acct = ledger.AcctRetirement
	k.Vintage = vintage
	return k
}

// soldKey transforms an available auction row into its post-sale form: the
// instruments land in private general holding, keeping their category and
// vintage for auditability.
func soldKey(k ledger.Key) ledger.Key {
	k.Acct = ledger.AcctGeneral
	k.Stat = ledger.StatusSold
	k.New = ledger.NewnessNA
	k.DateLevel = ledger.QuarterNA
	return k
}
