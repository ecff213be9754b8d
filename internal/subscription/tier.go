// Package subscription gates marketplace actions by a user's subscription tier.
package subscription

import (
	"fmt"
	"strings"
)

type Tier string

const (
	TierNone  Tier = "none"
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
)

type Action string

const (
	ActionBuy  Action = "buy"
	ActionBid  Action = "bid"
	ActionSell Action = "sell"
)

// permissions is the whole decision table. Missing entries deny.
var permissions = map[Tier]map[Action]bool{
	TierBasic: {ActionBuy: true, ActionBid: true},
	TierPro:   {ActionBuy: true, ActionBid: true, ActionSell: true},
}

// CanPerform reports whether a user on tier may perform action.
func CanPerform(tier Tier, action Action) bool {
	return permissions[tier][action]
}

// RequiredTier returns the cheapest tier that allows action.
func RequiredTier(action Action) (Tier, bool) {
	for _, t := range []Tier{TierBasic, TierPro} {
		if CanPerform(t, action) {
			return t, true
		}
	}
	return TierNone, false
}

func (t Tier) Valid() bool {
	switch t {
	case TierNone, TierBasic, TierPro:
		return true
	}
	return false
}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown subscription tier %q", s)
	}
	return t, nil
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionBuy, ActionBid, ActionSell:
		return a, nil
	}
	return "", fmt.Errorf("unknown marketplace action %q", s)
}

// Plan describes a tier as offered on the pricing page.
type Plan struct {
	Tier        Tier     `json:"tier"`
	Name        string   `json:"name"`
	PriceCents  int64    `json:"price_cents"`
	Interval    string   `json:"interval"`
	Actions     []Action `json:"actions"`
	Description string   `json:"description"`
}

// Plans lists the purchasable tiers, cheapest first. Prices are placeholders;
// no payment is taken.
func Plans() []Plan {
	return []Plan{
		{
			Tier:        TierBasic,
			Name:        "Basic",
			PriceCents:  999,
			Interval:    "month",
			Actions:     allowed(TierBasic),
			Description: "Buy listings and place bids.",
		},
		{
			Tier:        TierPro,
			Name:        "Pro",
			PriceCents:  2999,
			Interval:    "month",
			Actions:     allowed(TierPro),
			Description: "Everything in Basic, plus selling your own usernames and accounts.",
		},
	}
}

func allowed(t Tier) []Action {
	var out []Action
	for _, a := range []Action{ActionBuy, ActionBid, ActionSell} {
		if CanPerform(t, a) {
			out = append(out, a)
		}
	}
	return out
}
