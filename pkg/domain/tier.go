package domain

// Tier is the notification priority of an admitted item, lower is more urgent
type Tier int

const (
	TierPriority Tier = iota
	TierHot
	TierNotable
	TierRecommended
	TierNormal
)

// PriceBands holds the upper price bounds (inclusive) of the price-driven tiers
type PriceBands struct {
	Hot         int `yaml:"hot" json:"hot"`
	Notable     int `yaml:"notable" json:"notable"`
	Recommended int `yaml:"recommended" json:"recommended"`
}

// DefaultPriceBands are the reference bands
var DefaultPriceBands = PriceBands{Hot: 3000, Notable: 5000, Recommended: 10000}

// TierForPrice maps a price to its tier using the given bands
func TierForPrice(price int, bands PriceBands) Tier {
	switch {
	case price <= bands.Hot:
		return TierHot
	case price <= bands.Notable:
		return TierNotable
	case price <= bands.Recommended:
		return TierRecommended
	default:
		return TierNormal
	}
}

// Icon returns the emoji used for the tier
func (t Tier) Icon() string {
	switch t {
	case TierPriority:
		return "💌"
	case TierHot:
		return "🔥"
	case TierNotable:
		return "⭐"
	case TierRecommended:
		return "✨"
	default:
		return ""
	}
}

// Label returns the tier label shown on cards and headlines
func (t Tier) Label() string {
	switch t {
	case TierPriority:
		return "優先"
	case TierHot:
		return "特選"
	case TierNotable:
		return "注目"
	case TierRecommended:
		return "おすすめ"
	default:
		return "通常"
	}
}

// Color returns the card accent color
func (t Tier) Color() int {
	switch t {
	case TierPriority:
		return 0xFF66AA
	case TierHot:
		return 0xFF4444
	case TierNotable:
		return 0xFFDD33
	case TierRecommended:
		return 0xF28C28
	default:
		return 0x66CCFF
	}
}

// String implements fmt.Stringer
func (t Tier) String() string {
	switch t {
	case TierPriority:
		return "priority"
	case TierHot:
		return "hot"
	case TierNotable:
		return "notable"
	case TierRecommended:
		return "recommended"
	default:
		return "normal"
	}
}
