package dex

import "strings"

// Universe is the pricing universe of one network: its USD-stable assets and
// its wrapped native asset.
type Universe struct {
	stables map[string]struct{}
	wrapped string
}

// NewUniverse builds a Universe. Addresses are compared lower-cased.
func NewUniverse(stables []string, wrappedNative string) Universe {
	set := make(map[string]struct{}, len(stables))
	for _, s := range stables {
		set[strings.ToLower(s)] = struct{}{}
	}
	return Universe{stables: set, wrapped: strings.ToLower(wrappedNative)}
}

// WrappedNative returns the wrapped native asset address.
func (u Universe) WrappedNative() string { return u.wrapped }

// Stables returns the USD-stable asset addresses.
func (u Universe) Stables() []string {
	out := make([]string, 0, len(u.stables))
	for s := range u.stables {
		out = append(out, s)
	}
	return out
}

// IsStable reports whether token is a USD-stable asset.
func (u Universe) IsStable(token string) bool {
	_, ok := u.stables[token]
	return ok
}

// IsUsdPool reports whether either side of the pair is a USD-stable asset.
func (u Universe) IsUsdPool(token0, token1 string) bool {
	return u.IsStable(token0) || u.IsStable(token1)
}

// IsQuoted reports whether the pair is quoted against a stable or the wrapped native asset.
func (u Universe) IsQuoted(token0, token1 string) bool {
	return u.IsUsdPool(token0, token1) || token0 == u.wrapped || token1 == u.wrapped
}

// IsAnchor reports whether the pair is the wrapped native / USD-stable pair.
func (u Universe) IsAnchor(token0, token1 string) bool {
	return u.IsUsdPool(token0, token1) && (token0 == u.wrapped || token1 == u.wrapped)
}

// TargetToken returns the asset a pool prices: the non-stable side of a
// stable pair, otherwise the non-wrapped side.
func (u Universe) TargetToken(token0, token1 string) string {
	if u.IsUsdPool(token0, token1) {
		if u.IsStable(token0) {
			return token1
		}
		return token0
	}
	if token0 == u.wrapped {
		return token1
	}
	return token0
}
