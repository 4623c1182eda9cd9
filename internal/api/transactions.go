package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	xerrors "VoiceDot/internal/errors"
	"VoiceDot/internal/execution"
	"VoiceDot/internal/ledger"
	"VoiceDot/internal/transfer"
)

type buildRequest struct {
	Token            string `json:"token" form:"token" binding:"required"`
	Amount           string `json:"amount" form:"amount" binding:"required"`
	Recipient        string `json:"recipient" form:"recipient" binding:"required"`
	OriginChain      string `json:"origin_chain" form:"origin_chain"`
	DestinationChain string `json:"destination_chain" form:"destination_chain"`
	MinReceive       string `json:"min_receive" form:"min_receive"`
	SlippageBps      *int   `json:"slippage_bps" form:"slippage_bps"`
}

func (r buildRequest) transfer() transfer.Request {
	return transfer.Request{
		Token:            r.Token,
		Amount:           r.Amount,
		Recipient:        r.Recipient,
		OriginChain:      r.OriginChain,
		DestinationChain: r.DestinationChain,
		MinReceive:       r.MinReceive,
		SlippageBps:      r.SlippageBps,
	}
}

type buildResponse struct {
	CallHex          string        `json:"call_hex"`
	Fee              string        `json:"fee"`
	FeeToken         string        `json:"fee_token"`
	Kind             transfer.Kind `json:"kind"`
	Token            string        `json:"token"`
	OriginChain      string        `json:"origin_chain"`
	DestinationChain string        `json:"destination_chain"`
	AmountUnits      string        `json:"amount_units"`
}

func newBuildResponse(res transfer.Result) buildResponse {
	return buildResponse{
		CallHex:          res.CallHex,
		Fee:              res.FeeString(),
		FeeToken:         res.FeeToken,
		Kind:             res.Kind,
		Token:            res.Token.Symbol,
		OriginChain:      res.OriginChain,
		DestinationChain: res.DestinationChain,
		AmountUnits:      res.AmountUnits.String(),
	}
}

type executeRequest struct {
	TransactionID   string `json:"transaction_id" binding:"required"`
	SignedExtrinsic string `json:"signed_extrinsic" binding:"required"`
	UserID          string `json:"user_id"`
	Chain           string `json:"chain"`
	Token           string `json:"token"`
	MinReceive      string `json:"min_receive"`
	SlippageBps     *int   `json:"slippage_bps"`
}

type executeResponse struct {
	TransactionHash string        `json:"transaction_hash"`
	Status          ledger.Status `json:"status"`
}

func (s *Server) handleListTransactions(c *gin.Context) {
	if s.deps.Ledger == nil {
		s.writeError(c, notConfigured("ledger"))
		return
	}
	userID, err := resolveUser(c, c.Query("user_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if userID == "" {
		s.writeError(c, xerrors.New(xerrors.CodeValidation, "user_id is required"))
		return
	}

	opts := []ledger.ListOption{ledger.WithUser(userID)}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		var statuses []ledger.Status
		for _, part := range strings.Split(raw, ",") {
			status := ledger.Status(strings.ToLower(strings.TrimSpace(part)))
			if !ledger.IsValidStatus(status) {
				s.writeError(c, invalidQuery("status", part))
				return
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, ledger.WithStatuses(statuses...))
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		s.writeError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.writeError(c, err)
		return
	}
	opts = append(opts, ledger.WithLimit(limit), ledger.WithOffset(offset))

	records, err := s.deps.Ledger.List(c.Request.Context(), opts...)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if records == nil {
		records = []*ledger.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"items": records})
}

func (s *Server) handleGetTransaction(c *gin.Context) {
	if s.deps.Ledger == nil {
		s.writeError(c, notConfigured("ledger"))
		return
	}
	userID, err := resolveUser(c, c.Query("user_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	rec, err := s.deps.Ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	// 他人的交易按不存在处理。
	if userID != "" && rec.UserID != userID {
		s.writeError(c, ledger.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleBuild(c *gin.Context) {
	if s.deps.Builder == nil {
		s.writeError(c, notConfigured("transfer builder"))
		return
	}
	var req buildRequest
	if err := s.bind(c, &req); err != nil {
		s.writeError(c, err)
		return
	}
	res, err := s.deps.Builder.Build(c.Request.Context(), req.transfer())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBuildResponse(res))
}

func (s *Server) handleEstimateXCM(c *gin.Context) {
	if s.deps.Builder == nil {
		s.writeError(c, notConfigured("transfer builder"))
		return
	}
	var req buildRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		s.writeError(c, xerrors.Wrap(xerrors.CodeValidation, err, "invalid query"))
		return
	}
	res, err := s.deps.Builder.Build(c.Request.Context(), req.transfer())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fee":               res.FeeString(),
		"fee_token":         res.FeeToken,
		"kind":              res.Kind,
		"origin_chain":      res.OriginChain,
		"destination_chain": res.DestinationChain,
	})
}

func (s *Server) handleExecute(c *gin.Context) {
	if s.deps.Executor == nil {
		s.writeError(c, notConfigured("execution router"))
		return
	}
	var req executeRequest
	if err := s.bind(c, &req); err != nil {
		s.writeError(c, err)
		return
	}
	userID, err := resolveUser(c, req.UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	res, err := s.deps.Executor.Execute(c.Request.Context(), execution.Request{
		TransactionID:   req.TransactionID,
		UserID:          userID,
		SignedExtrinsic: req.SignedExtrinsic,
		Chain:           req.Chain,
		Token:           req.Token,
		MinReceive:      req.MinReceive,
		SlippageBps:     req.SlippageBps,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, executeResponse{TransactionHash: res.TransactionHash, Status: res.Record.Status})
}

func invalidQuery(name, value string) error {
	return xerrors.Newf(xerrors.CodeValidation, "invalid %s: %s", name, value)
}
