package api

import (
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"VoiceDot/internal/chain"
	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/prices"
	"VoiceDot/internal/units"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"service": serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleChainStatus(c *gin.Context) {
	if s.deps.Chains == nil {
		s.writeError(c, notConfigured("chain registry"))
		return
	}
	def, err := s.deps.Chains.Lookup(strings.ToLower(c.Param("chain")))
	if err != nil {
		s.writeError(c, err)
		return
	}
	client, err := s.deps.Chains.Client(c.Request.Context(), def.Name)
	if err == nil {
		var block uint64
		if block, err = client.Header(c.Request.Context()); err == nil {
			c.JSON(http.StatusOK, gin.H{"chain": def.Name, "connected": true, "block": block})
			return
		}
	}
	c.JSON(http.StatusBadGateway, gin.H{"chain": def.Name, "connected": false, "error": publicMessage(err)})
}

func (s *Server) handleBalance(c *gin.Context) {
	if s.deps.Chains == nil || s.deps.Tokens == nil {
		s.writeError(c, notConfigured("chain registry"))
		return
	}
	address := strings.TrimSpace(c.Query("wallet_address"))
	if address == "" {
		s.writeError(c, xerrors.New(xerrors.CodeValidation, "wallet_address is required"))
		return
	}
	symbols := splitSymbols(c.Query("token_symbols"))
	if len(symbols) == 0 {
		symbols = []string{"DOT"}
	}

	ctx := c.Request.Context()
	balances := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		tok, err := s.deps.Tokens.Lookup(symbol)
		if err != nil {
			s.writeError(c, err)
			return
		}
		def, err := s.deps.Chains.Lookup(tok.Chain)
		if err != nil {
			s.writeError(c, err)
			return
		}
		account, err := chain.AccountID(def, address)
		if err != nil {
			s.writeError(c, err)
			return
		}
		client, err := s.deps.Chains.Client(ctx, def.Name)
		if err != nil {
			s.writeError(c, err)
			return
		}

		var key []byte
		decode := chain.DecodeFreeBalance
		if !tok.Native && tok.AssetID != nil {
			key = chain.AssetAccountKey(*tok.AssetID, account)
			decode = chain.DecodeAssetBalance
		} else {
			key = chain.SystemAccountKey(account)
		}
		raw, err := client.Storage(ctx, key)
		if err != nil {
			s.writeError(c, err)
			return
		}
		var balance *big.Int
		if balance, err = decode(raw); err != nil {
			s.writeError(c, xerrors.Wrap(xerrors.CodeUpstream, err, "decode balance failed"))
			return
		}
		balances[tok.Symbol] = units.UnitsToDecimal(balance, tok.Decimals)
	}
	c.JSON(http.StatusOK, gin.H{"wallet_address": address, "balances": balances})
}

func (s *Server) handlePrices(c *gin.Context) {
	if s.deps.Prices == nil {
		s.writeError(c, notConfigured("price feed"))
		return
	}
	symbols := splitSymbols(c.Query("symbols"))
	if len(symbols) == 0 && s.deps.Tokens != nil {
		symbols = s.deps.Tokens.Symbols()
	}
	quotes, err := s.deps.Prices.USD(c.Request.Context(), symbols)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make(map[string]string, len(quotes))
	for symbol, price := range quotes {
		out[symbol] = price.String()
	}
	c.JSON(http.StatusOK, gin.H{"prices_usd": out})
}

func (s *Server) handleConvert(c *gin.Context) {
	if s.deps.Prices == nil {
		s.writeError(c, notConfigured("price feed"))
		return
	}
	amount, err := units.Parse(c.Query("amount"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	from := strings.ToUpper(strings.TrimSpace(c.Query("from")))
	to := strings.ToUpper(strings.TrimSpace(c.Query("to")))
	if from == "" || to == "" {
		s.writeError(c, xerrors.New(xerrors.CodeValidation, "from and to are required"))
		return
	}
	quotes, err := s.deps.Prices.USD(c.Request.Context(), []string{from, to})
	if err != nil {
		s.writeError(c, err)
		return
	}
	converted := prices.Convert(amount, quotes[from], quotes[to])
	c.JSON(http.StatusOK, gin.H{
		"amount":    amount.String(),
		"from":      from,
		"to":        to,
		"converted": converted.String(),
	})
}

func splitSymbols(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if symbol := strings.ToUpper(strings.TrimSpace(part)); symbol != "" {
			out = append(out, symbol)
		}
	}
	return out
}
