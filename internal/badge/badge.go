// Package badge はバッジカタログと獲得判定を提供する。
//
// バッジの獲得条件は Criteria の閉じた型集合で表し、集計値 Stats に対して一律に評価する。
// 獲得済みかどうかはユーザーごとに導出するもので、カタログ自体は変更しない。
package badge

import "github.com/hitoshi/studystreak/internal/model"

// Category はバッジの分類を表す。
type Category string

const (
	CategoryStreak      Category = "streak"
	CategoryTime        Category = "time"
	CategoryConsistency Category = "consistency"
	CategorySubject     Category = "subject"
	CategorySpecial     Category = "special"
)

// Tier はバッジの等級を表す。
type Tier string

const (
	TierBronze    Tier = "bronze"
	TierSilver    Tier = "silver"
	TierGold      Tier = "gold"
	TierPlatinum  Tier = "platinum"
	TierLegendary Tier = "legendary"
)

// Points は等級ごとの基本ポイントを返す。
func (t Tier) Points() int {
	switch t {
	case TierSilver:
		return 25
	case TierGold:
		return 50
	case TierPlatinum:
		return 100
	case TierLegendary:
		return 250
	default:
		return 10
	}
}

// Color は等級の表示色を返す。
func (t Tier) Color() string {
	switch t {
	case TierSilver:
		return "#C0C0C0"
	case TierGold:
		return "#FFD700"
	case TierPlatinum:
		return "#E5E4E2"
	case TierLegendary:
		return "#9400D3"
	default:
		return "#CD7F32"
	}
}

// Rarity はバッジの希少度を表す。
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Multiplier は希少度によるポイント倍率を返す。
func (r Rarity) Multiplier() float64 {
	switch r {
	case RarityRare:
		return 1.5
	case RarityEpic:
		return 2.0
	case RarityLegendary:
		return 3.0
	default:
		return 1.0
	}
}

// Badge はカタログ上のバッジ定義を表す。
type Badge struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Category    Category `json:"category"`
	Tier        Tier     `json:"tier"`
	Rarity      Rarity   `json:"rarity"`
	Color       string   `json:"color"`
	Secret      bool     `json:"is_secret"`
	Criteria    Criteria `json:"-"`
}

// Points は等級ポイントに希少度倍率を掛けた獲得ポイント（端数切り捨て）を返す。
func (b Badge) Points() int {
	return int(float64(b.Tier.Points()) * b.Rarity.Multiplier())
}

// Earned はクライアントの祝福表示用の要約に変換する。
func (b Badge) Earned() model.EarnedBadge {
	return model.EarnedBadge{
		Key:         b.Key,
		Name:        b.Name,
		Icon:        b.Icon,
		Description: b.Description,
	}
}
