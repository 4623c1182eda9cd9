package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"VoiceDot/internal/confirm"
	"VoiceDot/internal/intent"
	"VoiceDot/internal/ledger"
	"VoiceDot/internal/speech"
	"VoiceDot/internal/voice"
)

type voiceProcessRequest struct {
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	AudioData string `json:"audio_data"`
	Format    string `json:"format"`
	Language  string `json:"language"`
}

type voiceProcessResponse struct {
	SessionID              string         `json:"session_id,omitempty"`
	Transcript             string         `json:"transcript"`
	TransactionIDs         []string       `json:"transaction_ids"`
	Intent                 *intent.Intent `json:"intent"`
	ConfirmationPromptText string         `json:"confirmation_prompt_text"`
	ConfirmationAudio      *speech.Audio  `json:"confirmation_audio,omitempty"`
}

type voiceConfirmRequest struct {
	UserID         string   `json:"user_id"`
	Text           string   `json:"text"`
	AudioData      string   `json:"audio_data"`
	Format         string   `json:"format"`
	TransactionIDs []string `json:"transaction_ids"`
}

type voiceConfirmResponse struct {
	SessionID         string           `json:"session_id,omitempty"`
	Transcript        string           `json:"transcript"`
	Status            confirm.Decision `json:"status"`
	TransactionIDs    []string         `json:"transaction_ids"`
	ResponseText      string           `json:"response_text"`
	ConfirmationAudio *speech.Audio    `json:"confirmation_audio,omitempty"`
}

func (s *Server) handleVoiceProcess(c *gin.Context) {
	if s.deps.Voice == nil {
		s.writeError(c, notConfigured("voice pipeline"))
		return
	}
	var req voiceProcessRequest
	if err := s.bind(c, &req); err != nil {
		s.writeError(c, err)
		return
	}
	userID, err := resolveUser(c, req.UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	result, err := s.deps.Voice.Process(c.Request.Context(), voice.ProcessRequest{
		UserID:      userID,
		Text:        req.Text,
		AudioBase64: req.AudioData,
		Format:      req.Format,
		Language:    req.Language,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, voiceProcessResponse{
		SessionID:              result.SessionID,
		Transcript:             result.Transcript,
		TransactionIDs:         result.TransactionIDs,
		Intent:                 result.Intent,
		ConfirmationPromptText: result.PromptText,
		ConfirmationAudio:      result.Audio,
	})
}

func (s *Server) handleVoiceConfirm(c *gin.Context) {
	if s.deps.Voice == nil {
		s.writeError(c, notConfigured("voice pipeline"))
		return
	}
	var req voiceConfirmRequest
	if err := s.bind(c, &req); err != nil {
		s.writeError(c, err)
		return
	}
	userID, err := resolveUser(c, req.UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	result, err := s.deps.Voice.Confirm(c.Request.Context(), voice.ConfirmRequest{
		UserID:         userID,
		Text:           req.Text,
		AudioBase64:    req.AudioData,
		Format:         req.Format,
		TransactionIDs: req.TransactionIDs,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, voiceConfirmResponse{
		SessionID:         result.SessionID,
		Transcript:        result.Transcript,
		Status:            result.Status,
		TransactionIDs:    result.TransactionIDs,
		ResponseText:      result.ResponseText,
		ConfirmationAudio: result.Audio,
	})
}

func (s *Server) handleVoiceSessions(c *gin.Context) {
	if s.deps.Voice == nil {
		s.writeError(c, notConfigured("voice pipeline"))
		return
	}
	userID, err := resolveUser(c, c.Query("user_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		s.writeError(c, err)
		return
	}
	sessions, err := s.deps.Voice.Sessions(c.Request.Context(), userID, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if sessions == nil {
		sessions = []*ledger.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"items": sessions})
}

// queryInt 读取非负整数查询参数，缺省时返回 def。
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, invalidQuery(name, raw)
	}
	return v, nil
}
