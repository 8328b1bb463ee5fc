package services

import "order-of-ash/models"

var challengeBank = map[models.Tier][]models.Challenge{
	models.TierCommon: {
		{Question: "What remains when the flame has eaten everything?", Options: []string{"Smoke", "Ash", "Water", "Stone"}, Answer: 1},
		{Question: "Which element feeds a fire?", Options: []string{"Air", "Ice", "Salt", "Sand"}, Answer: 0},
		{Question: "What colour is cold ash?", Options: []string{"Red", "Green", "Grey", "Blue"}, Answer: 2},
	},
	models.TierUncommon: {
		{Question: "The Order counts its members in what?", Options: []string{"Coins", "Fragments", "Candles", "Keys"}, Answer: 1},
		{Question: "What rises from ashes in the old tales?", Options: []string{"A wolf", "A serpent", "A phoenix", "A raven"}, Answer: 2},
		{Question: "What does a burned letter leave behind?", Options: []string{"Its words", "Its seal", "Nothing", "Ash"}, Answer: 3},
	},
	models.TierRare: {
		{Question: "How many fragments complete the Order's sigil?", Options: []string{"Three", "Five", "Eight", "Twelve"}, Answer: 2},
		{Question: "Which hour does the Order keep for each initiate?", Options: []string{"Midnight", "Their hour of joining", "Dawn", "Noon"}, Answer: 1},
	},
	models.TierLegendary: {
		{Question: "What must an initiate speak to finish the rite?", Options: []string{"Their name", "The final phrase", "A prayer", "Nothing"}, Answer: 1},
		{Question: "What does the curse of the Order take from you?", Options: []string{"Time", "Fragments", "Gold", "Memory"}, Answer: 0},
	},
}

// PickChallenge draws a challenge from the tier's bank, falling back to the common bank.
func PickChallenge(tier models.Tier, rng Random) models.Challenge {
	bank := challengeBank[tier]
	if len(bank) == 0 {
		bank = challengeBank[models.TierCommon]
		tier = models.TierCommon
	}
	c := bank[rng.IntN(len(bank))]
	c.Options = append([]string(nil), c.Options...)
	c.Tier = tier
	return c
}
