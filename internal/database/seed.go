package database

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cryptopulse/internal/models"
)

// DefaultCoins is the catalog shipped with the app, keyed to CoinGecko ids.
var DefaultCoins = []models.Coin{
	{Name: "Bitcoin", Symbol: "BTC", Color: "#FFEDD5", GeckoID: "bitcoin"},
	{Name: "Ethereum", Symbol: "ETH", Color: "#DBEAFE", GeckoID: "ethereum"},
	{Name: "Tether", Symbol: "USDT", Color: "#D4F1E8", GeckoID: "tether"},
	{Name: "BNB", Symbol: "BNB", Color: "#F3BA2F", GeckoID: "binancecoin"},
	{Name: "Solana", Symbol: "SOL", Color: "#E4DCFC", GeckoID: "solana"},
	{Name: "USD Coin", Symbol: "USDC", Color: "#D6E6FA", GeckoID: "usd-coin"},
	{Name: "XRP", Symbol: "XRP", Color: "#D9D9D9", GeckoID: "ripple"},
	{Name: "Cardano", Symbol: "ADA", Color: "#DBEAFE", GeckoID: "cardano"},
	{Name: "Dogecoin", Symbol: "DOGE", Color: "#F5E6A7", GeckoID: "dogecoin"},
	{Name: "TRON", Symbol: "TRX", Color: "#FF4B4B", GeckoID: "tron"},
	{Name: "Avalanche", Symbol: "AVAX", Color: "#FAD4D4", GeckoID: "avalanche-2"},
	{Name: "Shiba Inu", Symbol: "SHIB", Color: "#FFD1C7", GeckoID: "shiba-inu"},
	{Name: "Polkadot", Symbol: "DOT", Color: "#FCE4EC", GeckoID: "polkadot"},
	{Name: "Chainlink", Symbol: "LINK", Color: "#D6E6FA", GeckoID: "chainlink"},
	{Name: "Bitcoin Cash", Symbol: "BCH", Color: "#D4F1E8", GeckoID: "bitcoin-cash"},
	{Name: "NEAR Protocol", Symbol: "NEAR", Color: "#E6ECEF", GeckoID: "near"},
	{Name: "Polygon", Symbol: "MATIC", Color: "#E4DCFC", GeckoID: "matic-network"},
	{Name: "Litecoin", Symbol: "LTC", Color: "#E6ECEF", GeckoID: "litecoin"},
	{Name: "Internet Computer", Symbol: "ICP", Color: "#F5E6FA", GeckoID: "internet-computer"},
	{Name: "Uniswap", Symbol: "UNI", Color: "#FAD4E8", GeckoID: "uniswap"},
	{Name: "Dai", Symbol: "DAI", Color: "#FFF8E1", GeckoID: "dai"},
	{Name: "Cosmos", Symbol: "ATOM", Color: "#E6ECEF", GeckoID: "cosmos"},
	{Name: "Stellar", Symbol: "XLM", Color: "#D6E6FA", GeckoID: "stellar"},
	{Name: "Monero", Symbol: "XMR", Color: "#FFE0CC", GeckoID: "monero"},
	{Name: "Ethereum Classic", Symbol: "ETC", Color: "#D4F1E8", GeckoID: "ethereum-classic"},
	{Name: "Hedera", Symbol: "HBAR", Color: "#E6ECEF", GeckoID: "hedera-hashgraph"},
	{Name: "Filecoin", Symbol: "FIL", Color: "#D6E6FA", GeckoID: "filecoin"},
	{Name: "Aptos", Symbol: "APT", Color: "#D9E8F5", GeckoID: "aptos"},
	{Name: "Arbitrum", Symbol: "ARB", Color: "#D6E6FA", GeckoID: "arbitrum"},
	{Name: "Hyperliquid", Symbol: "HYPE", Color: "#E4DCFC", GeckoID: "hyperliquid"},
}

// SeedCoins inserts the default catalog, leaving existing symbols alone.
func SeedCoins(db *gorm.DB) error {
	coins := make([]models.Coin, len(DefaultCoins))
	copy(coins, DefaultCoins)
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoNothing: true,
	}).Create(&coins).Error
}
