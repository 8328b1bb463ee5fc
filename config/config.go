// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tongo"
)

type Config struct {
	API struct {
		Port               int      `env:"PORT" envDefault:"5200"`
		AllowedOrigins     []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`
		RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	}
	App struct {
		LogLevel      string        `env:"LOG_LEVEL" envDefault:"INFO"`
		DatabaseURL   string        `env:"DATABASE_URL,required"`
		SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	}
	Auth struct {
		JWTSecret      string        `env:"JWT_SECRET,required"`
		JWTTTL         time.Duration `env:"JWT_TTL" envDefault:"24h"`
		BotToken       string        `env:"TELEGRAM_BOT_TOKEN,required"`
		InitDataMaxAge time.Duration `env:"INITDATA_MAX_AGE" envDefault:"24h"`
		ServiceToken   string        `env:"SERVICE_TOKEN,required"`
	}
	TON  TONConfig
	Game GameRules
}

// TONConfig describes where players pay and how the indexer is reached.
type TONConfig struct {
	APIURL        string          `env:"TONAPI_URL" envDefault:"https://tonapi.io"`
	APIToken      string          `env:"TONAPI_TOKEN"`
	DepositWallet tongo.AccountID `env:"DEPOSIT_WALLET,required"`
	Testnet       bool            `env:"TESTNET" envDefault:"false"`
	InvoiceAmount decimal.Decimal `env:"INVOICE_AMOUNT_TON" envDefault:"0.5"`
	WatchInterval time.Duration   `env:"WATCH_INTERVAL" envDefault:"10s"`
	WatchBatch    int             `env:"WATCH_BATCH" envDefault:"50"`
}

// AmountNano converts the nominal invoice amount to nanoton.
func (c TONConfig) AmountNano() int64 {
	return TONToNano(c.InvoiceAmount)
}

// TONToNano converts a TON amount to nanoton, truncating anything below one nanoton.
func TONToNano(amount decimal.Decimal) int64 {
	return amount.Shift(9).IntPart()
}

// NanoToTON renders nanoton as a TON decimal.
func NanoToTON(nano int64) decimal.Decimal {
	return decimal.New(nano, -9)
}

// RarityWeights are the base weights of the common, uncommon, rare and legendary tiers.
type RarityWeights [4]int

// GameRules holds every tunable of the burn economy.
type GameRules struct {
	MandatoryFragments    []int         `env:"MANDATORY_FRAGMENTS" envDefault:"1,2,3"`
	PaidFragments         []int         `env:"PAID_FRAGMENTS" envDefault:"4,5,6,7,8"`
	GuaranteeThreshold    int           `env:"GUARANTEE_THRESHOLD" envDefault:"2"`
	MaxCurses             int           `env:"MAX_CURSES" envDefault:"4"`
	CurseProbability      float64       `env:"CURSE_PROBABILITY" envDefault:"0.3"`
	CurseDuration         time.Duration `env:"CURSE_DURATION" envDefault:"24h"`
	RarityWeights         RarityWeights `env:"RARITY_WEIGHTS" envDefault:"50,30,15,5"`
	PityBoostStep         int           `env:"PITY_BOOST_STEP" envDefault:"2"`
	PityBoostCap          int           `env:"PITY_BOOST_CAP" envDefault:"20"`
	ReferralThreshold     int           `env:"REFERRAL_THRESHOLD" envDefault:"3"`
	ReferralBonusFragment int           `env:"REFERRAL_BONUS_FRAGMENT" envDefault:"2"`
	FreeBurnCooldown      time.Duration `env:"FREE_BURN_COOLDOWN" envDefault:"2h"`
	FinalPhraseTemplate   string        `env:"FINAL_PHRASE_TEMPLATE" envDefault:"i am the ash of "`
	ResolveTimeout        time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"5s"`
}

// DefaultGameRules mirrors the envDefault values above.
func DefaultGameRules() GameRules {
	return GameRules{
		MandatoryFragments:    []int{1, 2, 3},
		PaidFragments:         []int{4, 5, 6, 7, 8},
		GuaranteeThreshold:    2,
		MaxCurses:             4,
		CurseProbability:      0.3,
		CurseDuration:         24 * time.Hour,
		RarityWeights:         RarityWeights{50, 30, 15, 5},
		PityBoostStep:         2,
		PityBoostCap:          20,
		ReferralThreshold:     3,
		ReferralBonusFragment: 2,
		FreeBurnCooldown:      2 * time.Hour,
		FinalPhraseTemplate:   "i am the ash of ",
		ResolveTimeout:        5 * time.Second,
	}
}

// AllFragments returns the sorted union of the mandatory and paid pools.
func (g GameRules) AllFragments() []int {
	seen := make(map[int]struct{}, len(g.MandatoryFragments)+len(g.PaidFragments))
	var all []int
	for _, f := range append(append([]int{}, g.MandatoryFragments...), g.PaidFragments...) {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		all = append(all, f)
	}
	sort.Ints(all)
	return all
}

func (g GameRules) Validate() error {
	if len(g.MandatoryFragments) == 0 || len(g.PaidFragments) == 0 {
		return errors.New("mandatory and paid fragment pools must not be empty")
	}
	mandatory := make(map[int]bool, len(g.MandatoryFragments))
	for _, f := range g.MandatoryFragments {
		if f <= 0 {
			return fmt.Errorf("fragment ids must be positive, got %d", f)
		}
		mandatory[f] = true
	}
	for _, f := range g.PaidFragments {
		if f <= 0 {
			return fmt.Errorf("fragment ids must be positive, got %d", f)
		}
		if mandatory[f] {
			return fmt.Errorf("fragment %d is both mandatory and paid", f)
		}
	}
	bonusKnown := false
	for _, f := range g.AllFragments() {
		if f == g.ReferralBonusFragment {
			bonusKnown = true
		}
	}
	if !bonusKnown {
		return fmt.Errorf("referral bonus fragment %d is not in any pool", g.ReferralBonusFragment)
	}
	if g.CurseProbability < 0 || g.CurseProbability > 1 {
		return fmt.Errorf("curse probability %v out of [0,1]", g.CurseProbability)
	}
	total := 0
	for _, w := range g.RarityWeights {
		if w < 0 {
			return fmt.Errorf("negative rarity weight in %v", g.RarityWeights)
		}
		total += w
	}
	if total <= 0 {
		return errors.New("rarity weights must sum to a positive value")
	}
	if g.MaxCurses < 0 || g.GuaranteeThreshold < 0 || g.PityBoostStep < 0 || g.PityBoostCap < 0 {
		return errors.New("curse cap, guarantee threshold and pity boost must be non-negative")
	}
	if g.ResolveTimeout <= 0 {
		return errors.New("resolve timeout must be positive")
	}
	return nil
}

var parsers = map[reflect.Type]env.ParserFunc{
	reflect.TypeOf(tongo.AccountID{}): func(v string) (interface{}, error) {
		return tongo.ParseAccountID(strings.TrimSpace(v))
	},
	reflect.TypeOf(decimal.Decimal{}): func(v string) (interface{}, error) {
		return decimal.NewFromString(strings.TrimSpace(v))
	},
	reflect.TypeOf(RarityWeights{}): func(v string) (interface{}, error) {
		parts := strings.Split(v, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("expected 4 rarity weights, got %d", len(parts))
		}
		var w RarityWeights
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("rarity weight %q: %w", p, err)
			}
			w[i] = n
		}
		return w, nil
	},
}

// Parse reads the process environment into a Config without touching .env files.
func Parse() (Config, error) {
	var c Config
	if err := env.ParseWithFuncs(&c, parsers); err != nil {
		return Config{}, err
	}
	if err := c.Game.Validate(); err != nil {
		return Config{}, err
	}
	if c.TON.AmountNano() <= 0 {
		return Config{}, fmt.Errorf("invoice amount %s must be positive", c.TON.InvoiceAmount)
	}
	return c, nil
}

// Load reads .env (if present) and the environment; it panics on invalid configuration.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	c, err := Parse()
	if err != nil {
		log.Panicf("[‼️  Config parsing failed] %+v\n", err)
	}
	return c
}
