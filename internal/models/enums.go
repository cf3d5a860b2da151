package models

import (
	"fmt"
	"strings"
)

// InstrumentKind selects the volatility class of an instrument.
type InstrumentKind string

const (
	KindEquity InstrumentKind = "EQUITY"
	KindCrypto InstrumentKind = "CRYPTO"
)

// ParseInstrumentKind accepts EQUITY (or the legacy STOCK) and CRYPTO, case-insensitively.
func ParseInstrumentKind(s string) (InstrumentKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EQUITY", "STOCK":
		return KindEquity, nil
	case "CRYPTO":
		return KindCrypto, nil
	}
	return "", fmt.Errorf("%w: unknown instrument kind %q", ErrInvalidOrder, s)
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts BUY or SELL in any case, ignoring surrounding space.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, s)
}

// OrderKind is MARKET or LIMIT. Both fill at the current simulated price.
type OrderKind string

const (
	OrderMarket OrderKind = "MARKET"
	OrderLimit  OrderKind = "LIMIT"
)

// ParseOrderKind defaults an empty kind to MARKET.
func ParseOrderKind(s string) (OrderKind, error) {
	switch OrderKind(strings.ToUpper(strings.TrimSpace(s))) {
	case "", OrderMarket:
		return OrderMarket, nil
	case OrderLimit:
		return OrderLimit, nil
	}
	return "", fmt.Errorf("%w: unknown order kind %q", ErrInvalidOrder, s)
}
