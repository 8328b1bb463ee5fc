package services

import (
	"order-of-ash/config"
	"order-of-ash/models"
)

// TierWeights applies the pity boost: rare gains min(pity*step, cap) and common loses the same,
// never dropping below zero.
func TierWeights(base config.RarityWeights, pity, step, boostCap int) config.RarityWeights {
	boost := pity * step
	if boost > boostCap {
		boost = boostCap
	}
	if boost < 0 {
		boost = 0
	}
	w := base
	w[2] += boost
	w[0] -= boost
	if w[0] < 0 {
		w[0] = 0
	}
	return w
}

// RollTier maps a uniform draw over the total weight through the cumulative ranges.
func RollTier(w config.RarityWeights, rng Random) models.Tier {
	total := 0
	for _, x := range w {
		total += x
	}
	if total <= 0 {
		return models.TierCommon
	}
	r := rng.IntN(total)
	acc := 0
	for i, x := range w {
		acc += x
		if r < acc {
			return models.Tiers[i]
		}
	}
	return models.TierLegendary
}
