package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shubham07069/chatgod/internal/apperr"
	"github.com/shubham07069/chatgod/internal/assistant"
	"github.com/shubham07069/chatgod/internal/auth"
	"github.com/shubham07069/chatgod/internal/logging"
)

type AssistantHandler struct {
	Assistant *assistant.Service
	Sessions  *auth.Sessions
	Logger    *zap.Logger
}

type AskRequest struct {
	Message string   `json:"message"`
	Mode    string   `json:"mode"`
	Models  []string `json:"models"`
}

type NewChatRequest struct {
	ChatName string `json:"chat_name" validate:"max=200"`
}

func (h *AssistantHandler) log() *zap.Logger { return logging.OrNop(h.Logger) }

// save persists the session fields the assistant changed.
func (h *AssistantHandler) save(w http.ResponseWriter, r *http.Request, ac *auth.Context) error {
	if err := h.Sessions.Save(w, r, ac); err != nil {
		h.log().Error("Failed to save session", zap.Int("user_id", ac.UserID), zap.Error(err))
		return err
	}
	return nil
}

// Chat opens the assistant, starting a placeholder chat on first visit.
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if h.Assistant.Enter(ac) {
		if err := h.save(w, r, ac); err != nil {
			writeError(w, h.log(), r, err)
			return
		}
	}
	labels := make([]string, 0, len(assistant.Models()))
	for _, m := range assistant.Models() {
		labels = append(labels, m.Label)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chat_name": ac.ChatName,
		"models":    labels,
		"modes":     []assistant.Mode{assistant.ModeNormal, assistant.ModePro, assistant.ModeFun},
	})
}

// Ask replies with {"reply": ...}. Failures keep the same shape with the
// error text and the status for the error.
func (h *AssistantHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		h.askFailed(w, r, err)
		return
	}
	var req AskRequest
	if err := decode(r, &req); err != nil {
		h.askFailed(w, r, err)
		return
	}
	ans, err := h.Assistant.Ask(r.Context(), ac, assistant.AskRequest{
		Message: req.Message,
		Mode:    req.Mode,
		Models:  req.Models,
	})
	if err != nil {
		h.askFailed(w, r, err)
		return
	}
	if err := h.save(w, r, ac); err != nil {
		h.askFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": ans.Reply, "chat_name": ans.ChatName})
}

func (h *AssistantHandler) askFailed(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log().Error("Ask failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"reply": "Something went wrong: " + apperr.Public(err)})
}

func (h *AssistantHandler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	names, err := h.Assistant.ChatNames(r.Context(), ac.UserID)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"chat_names": names})
}

func (h *AssistantHandler) LoadChat(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	history, err := h.Assistant.LoadChat(r.Context(), ac, mux.Vars(r)["name"])
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if err := h.save(w, r, ac); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// StartNewChat takes the name from the path, or from a JSON body on POST.
func (h *AssistantHandler) StartNewChat(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	name := mux.Vars(r)["name"]
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		var req NewChatRequest
		if err := decode(r, &req); err != nil {
			writeError(w, h.log(), r, err)
			return
		}
		name = req.ChatName
	}
	name = h.Assistant.NewChat(ac, name)
	if err := h.save(w, r, ac); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "chat_name": name})
}

func (h *AssistantHandler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	ac, err := caller(r)
	if err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if _, err := h.Assistant.DeleteHistory(r.Context(), ac); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	if err := h.save(w, r, ac); err != nil {
		writeError(w, h.log(), r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
