package httpapi

import (
	"context"
	"net/http"
	"strings"

	"wisefido-sos/internal/models"

	"go.uber.org/zap"
)

// ContactService 联系人目录（contacts.Directory 实现）
type ContactService interface {
	Add(ctx context.Context, in models.ContactInput) (*models.Contact, error)
	Edit(ctx context.Context, id string, in models.ContactInput) (*models.Contact, error)
	Remove(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) (*models.Contact, error)
	Get(ctx context.Context, id string) (*models.Contact, error)
	List(ctx context.Context) ([]models.Contact, error)
	Stats(ctx context.Context) (models.ContactStats, error)
}

// ContactTester 测试消息（notify.Dispatcher 实现）
type ContactTester interface {
	SendTest(ctx context.Context, contact models.Contact) models.DeliveryResult
}

type ContactsHandler struct {
	contacts ContactService
	tester   ContactTester
	logger   *zap.Logger
}

func NewContactsHandler(contacts ContactService, tester ContactTester, logger *zap.Logger) *ContactsHandler {
	return &ContactsHandler{contacts: contacts, tester: tester, logger: logger}
}

func (h *ContactsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.contacts.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(list))
}

func (h *ContactsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.ContactInput
	if err := readBodyJSON(r, maxBodyBytes, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	c, err := h.contacts.Add(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(c))
}

func (h *ContactsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.contacts.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(stats))
}

// ServeContact /api/v1/contacts/{id}、/{id}/active、/{id}/test
func (h *ContactsHandler) ServeContact(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/contacts/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" || len(parts) > 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 2 {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		switch parts[1] {
		case "active":
			h.setActive(w, r, id)
		case "test":
			h.sendTest(w, r, id)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, err := h.contacts.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(c))
	case http.MethodPut:
		var in models.ContactInput
		if err := readBodyJSON(r, maxBodyBytes, &in); err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
			return
		}
		c, err := h.contacts.Edit(r.Context(), id, in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(c))
	case http.MethodDelete:
		if err := h.contacts.Remove(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id}))
	default:
		methodNotAllowed(w)
	}
}

func (h *ContactsHandler) setActive(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		IsActive *bool `json:"isActive"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil || body.IsActive == nil {
		writeJSON(w, http.StatusBadRequest, Fail("isActive is required"))
		return
	}
	c, err := h.contacts.SetActive(r.Context(), id, *body.IsActive)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(c))
}

func (h *ContactsHandler) sendTest(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.contacts.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	res := h.tester.SendTest(r.Context(), *c)
	if !res.Success {
		writeJSON(w, http.StatusBadGateway, FailWithResult(res.Error, res))
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}
