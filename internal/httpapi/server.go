// Package httpapi is the thin in-process embedding surface for the
// analysis core: a JSON front end over Session State (C10) and the Dialog
// Answerer (C8). spec.md puts the chat front-end itself out of scope; this
// package is the narrow HTTP adapter a chat front-end (or any other
// embedder) would sit behind, not that front-end.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"voxpersona/internal/apperr"
	"voxpersona/internal/audit"
	"voxpersona/internal/dialog"
	"voxpersona/internal/session"
	"voxpersona/internal/version"
)

// Server exposes Session State and the Dialog Answerer as JSON endpoints.
type Server struct {
	Sessions *session.Store
	Answerer *dialog.Answerer
}

// NewMux builds the ServeMux for this server, following the same flat
// route-registration shape as the rest of the corpus's HTTP adapters.
func (s *Server) NewMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": version.Version})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ready"))
	})

	mux.HandleFunc("/v1/sessions/", s.sessionHandler())
	mux.HandleFunc("/v1/dialog/answer", s.dialogAnswerHandler())

	return mux
}

type audioMetaRequest struct {
	AudioNumber  string `json:"audio_number"`
	Employee     string `json:"employee"`
	Client       string `json:"client"`
	Place        string `json:"place"`
	BuildingType string `json:"building_type"`
	Zone         string `json:"zone"`
	City         string `json:"city"`
	Mode         string `json:"mode"`
}

type confirmRequest struct {
	Confirmed bool `json:"confirmed"`
}

type reportChoiceRequest struct {
	ScenarioID   int64 `json:"scenario_id"`
	ReportTypeID int64 `json:"report_type_id"`
}

type buildingChoiceRequest struct {
	BuildingTypeID int64  `json:"building_type_id"`
	SourceName     string `json:"source_name"`
}

type dialogEnterRequest struct {
	DeepSearch bool `json:"deep_search"`
}

type dialogAnswerRequest struct {
	Query      string `json:"query"`
	DeepSearch bool   `json:"deep_search"`
}

// sessionHandler dispatches /v1/sessions/{userID}/{action} to the matching
// session.Store transition. One handler keeps the action-to-step mapping
// (and its error handling) in a single place instead of six near-identical
// handlers.
func (s *Server) sessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, action, ok := splitSessionPath(r.URL.Path)
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		var (
			st  *session.State
			err error
		)
		switch action {
		case "audio-meta":
			var req audioMetaRequest
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			st, err = s.Sessions.SetAudioMeta(userID, audit.AnalysisContext{
				AudioNumber:  req.AudioNumber,
				Date:         time.Now(),
				Employee:     req.Employee,
				Client:       req.Client,
				Place:        req.Place,
				BuildingType: req.BuildingType,
				Zone:         req.Zone,
				City:         req.City,
				Mode:         req.Mode,
			})
		case "confirm":
			var req confirmRequest
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			st, err = s.Sessions.Confirm(userID, req.Confirmed)
		case "report":
			var req reportChoiceRequest
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			st, err = s.Sessions.ChooseReport(userID, req.ScenarioID, req.ReportTypeID)
		case "building":
			var req buildingChoiceRequest
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			st, err = s.Sessions.ChooseBuilding(userID, req.BuildingTypeID, req.SourceName)
		case "execute":
			auditID, finalText, execErr := s.Sessions.RunReady(r.Context(), userID)
			if execErr != nil {
				writeError(w, execErr)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"audit_id": auditID, "final_text": finalText})
			return
		case "dialog/enter":
			var req dialogEnterRequest
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			st = s.Sessions.EnterDialog(userID, req.DeepSearch)
		case "dialog/exit":
			st = s.Sessions.ExitDialog(userID)
		default:
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"step": st.Step})
	}
}

func (s *Server) dialogAnswerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req dialogAnswerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		answer, err := s.Answerer.Answer(r.Context(), req.Query, req.DeepSearch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps an apperr kind to the short user-facing summary spec.md
// §7 specifies, rather than leaking the underlying cause to the caller.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.InvalidInput, apperr.InvalidReference, apperr.Unrouted:
		status = http.StatusBadRequest
	case apperr.Timeout:
		status = http.StatusGatewayTimeout
	case apperr.RateLimited, apperr.Overloaded, apperr.Unavailable, apperr.CredentialError, apperr.IndexUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"error": apperr.UserMessage(err)})
}

// splitSessionPath parses "/v1/sessions/{userID}/{action}" where action may
// itself contain a slash (dialog/enter, dialog/exit).
func splitSessionPath(path string) (userID, action string, ok bool) {
	const prefix = "/v1/sessions/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	i := strings.Index(rest, "/")
	if i < 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}
