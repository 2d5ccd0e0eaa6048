package mocks

//go:generate mockgen -destination=./mock_gateway.go -package=mocks github.com/alanyoungcy/twapbot/internal/domain ExchangeGateway,TokenResolver,WalletSigner,SignerResolver
//go:generate mockgen -destination=./mock_cache.go -package=mocks github.com/alanyoungcy/twapbot/internal/domain RateLimiter,LockManager
