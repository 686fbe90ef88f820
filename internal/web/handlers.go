package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"

	"github.com/mailflow-app/mailflow/internal/triage"
)

// User-facing error messages.
const (
	msgNotJSON          = "Envie JSON no corpo (Content-Type: application/json)."
	msgEmptyText        = "O texto do e-mail não pode estar vazio."
	msgNotFound         = "Rota não encontrada."
	msgMethodNotAllowed = "Método HTTP não permitido."
	msgTooLarge         = "Payload muito grande."
	msgInternal         = "Erro interno do servidor."
	msgRateLimited      = "Muitas requisições. Aguarde um instante e tente novamente."
	msgCSRF             = "Token CSRF inválido ou ausente. Recarregue a página."
)

type processRequest struct {
	TextoEmail string `json:"texto_email"`
}

type processResponse struct {
	Categoria        string `json:"categoria"`
	SugestaoResposta string `json:"sugestao_resposta"`
}

type explainResponse struct {
	processResponse
	Pontuacao int      `json:"pontuacao"`
	Sinais    []signal `json:"sinais"`
}

type signal struct {
	Sinal string `json:"sinal"`
	Termo string `json:"termo,omitempty"`
	Peso  int    `json:"peso"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"erro": msg})
}

func (s *Server) internalError(w http.ResponseWriter, cause interface{}) {
	msg := msgInternal
	if s.config.Server.VerboseErrors {
		msg = fmt.Sprintf("%s Detalhes: %v", msg, cause)
	}
	writeError(w, http.StatusInternalServerError, msg)
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, msgNotFound)
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
}

func (s *Server) handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	s.log.Warn().
		Str("request_id", middleware.GetReqID(r.Context())).
		AnErr("reason", csrf.FailureReason(r)).
		Msg("CSRF check failed")
	writeError(w, http.StatusForbidden, msgCSRF)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDiag(w http.ResponseWriter, r *http.Request) {
	lex := s.classifier.Lexicon()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":        s.version,
		"lexicon_source": lex.Source(),
		"lexicon_sizes":  lex.Sizes(),
		"threshold":      triage.ProductiveThreshold,
		"csrf":           s.config.Server.CSRFEnabled(),
		"reply_enabled":  s.config.Reply.Enabled,
		"inbox_enabled":  s.config.Inbox.Enabled,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"Title":   "MailFlow",
		"Version": s.version,
	}
	if s.config.Server.CSRFEnabled() {
		data["CSRFToken"] = csrf.Token(r)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.index.Execute(w, data); err != nil {
		s.log.Error().Err(err).Msg("failed to render index")
	}
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json" || (strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}

func (s *Server) handleProcessEmail(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusBadRequest, msgNotJSON)
		return
	}

	limit := s.config.Server.MaxBodyBytes
	if limit > 0 {
		if r.ContentLength > limit {
			writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, msgNotJSON)
		return
	}

	// Malformed JSON or a non-string field counts as missing text
	var req processRequest
	_ = json.Unmarshal(body, &req)
	text := strings.TrimSpace(req.TextoEmail)
	if text == "" {
		writeError(w, http.StatusBadRequest, msgEmptyText)
		return
	}

	exp := s.classifier.Explain(text)
	resp := processResponse{
		Categoria:        exp.Category.Label(),
		SugestaoResposta: exp.SuggestedReply,
	}

	s.log.Debug().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("category", exp.Category.String()).
		Int("score", exp.Score).
		Int("length", len(text)).
		Msg("classified")

	if r.URL.Query().Get("explain") != "1" {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	out := explainResponse{processResponse: resp, Pontuacao: exp.Score, Sinais: make([]signal, 0, len(exp.Contributions))}
	for _, c := range exp.Contributions {
		out.Sinais = append(out.Sinais, signal{Sinal: string(c.Signal), Termo: c.Term, Peso: c.Weight})
	}
	writeJSON(w, http.StatusOK, out)
}
