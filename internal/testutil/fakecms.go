package testutil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/ansuz/internal/strapi"
)

// Credentials accepted by the fake CMS.
const (
	CMSIdentifier = "archiver@example.org"
	CMSPassword   = "scraper-pass"
)

// FakeCMS is an in-memory stand-in for the Strapi backend. It implements
// local auth, whatsapp-groups, messages, and tags with the _start/_limit
// paging the real API uses.
type FakeCMS struct {
	mu       sync.Mutex
	token    string
	nextID   int
	Groups   []strapi.Group
	Messages []storedMessage
	Tags     []strapi.Tag

	// FailCreates, when positive, makes that many message creates return
	// 400 before behaving normally again.
	FailCreates int
	// GroupListings counts GET /whatsapp-groups requests served.
	GroupListings int
}

type storedMessage struct {
	strapi.RemoteMessage
	Group int
}

// StartCMS starts a fake CMS on an httptest server, cleaned up with the
// test. The returned URL is ready for a strapi.Client.
func StartCMS(t *testing.T) (*FakeCMS, string) {
	t.Helper()
	cms := NewFakeCMS()
	srv := httptest.NewServer(cms.Router())
	t.Cleanup(srv.Close)
	return cms, srv.URL
}

// NewFakeCMS creates an empty fake CMS with a signed session token.
func NewFakeCMS() *FakeCMS {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  1,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("fakecms-secret"))
	if err != nil {
		panic(err)
	}
	return &FakeCMS{token: token, nextID: 1}
}

// Router builds the chi router serving the fake API.
func (f *FakeCMS) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/local", f.authenticate)

	r.Group(func(r chi.Router) {
		r.Use(f.requireBearer)

		r.Get("/whatsapp-groups", f.listGroups)
		r.Post("/whatsapp-groups", f.createGroup)
		r.Delete("/whatsapp-groups/{id}", f.deleteGroup)

		r.Get("/messages", f.listMessages)
		r.Post("/messages", f.createMessage)
		r.Delete("/messages/{id}", f.deleteMessage)

		r.Get("/tags", f.listTags)
		r.Post("/tags", f.createTag)
	})

	return r
}

func (f *FakeCMS) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != f.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeCMS) authenticate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.Identifier != CMSIdentifier || req.Password != CMSPassword {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jwt": f.token})
}

func (f *FakeCMS) listGroups(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GroupListings++
	page := make([]strapi.Group, 0, len(f.Groups))
	start, limit := paging(r)
	for i := start; i < len(f.Groups) && i < start+limit; i++ {
		page = append(page, f.Groups[i])
	}
	writeJSON(w, http.StatusOK, page)
}

func (f *FakeCMS) createGroup(w http.ResponseWriter, r *http.Request) {
	var payload strapi.GroupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	g := strapi.Group{ID: f.nextID, Name: payload.Name}
	f.nextID++
	f.Groups = append(f.Groups, g)
	writeJSON(w, http.StatusOK, g)
}

func (f *FakeCMS) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad id"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, g := range f.Groups {
		if g.ID == id {
			f.Groups = append(f.Groups[:i], f.Groups[i+1:]...)
			writeJSON(w, http.StatusOK, g)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func (f *FakeCMS) listMessages(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := make([]strapi.RemoteMessage, 0, len(f.Messages))
	start, limit := paging(r)
	for i := start; i < len(f.Messages) && i < start+limit; i++ {
		page = append(page, f.Messages[i].RemoteMessage)
	}
	writeJSON(w, http.StatusOK, page)
}

func (f *FakeCMS) createMessage(w http.ResponseWriter, r *http.Request) {
	var payload strapi.MessagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad payload"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreates > 0 {
		f.FailCreates--
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content validation failed"})
		return
	}
	m := storedMessage{
		RemoteMessage: strapi.RemoteMessage{
			ID:      f.nextID,
			Content: payload.Content,
			Date:    payload.Date,
			Author:  payload.Author,
		},
		Group: payload.WhatsappGroup,
	}
	f.nextID++
	f.Messages = append(f.Messages, m)
	writeJSON(w, http.StatusOK, m.RemoteMessage)
}

func (f *FakeCMS) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad id"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.Messages {
		if m.ID == id {
			f.Messages = append(f.Messages[:i], f.Messages[i+1:]...)
			writeJSON(w, http.StatusOK, m.RemoteMessage)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func (f *FakeCMS) listTags(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := make([]strapi.Tag, 0, len(f.Tags))
	start, limit := paging(r)
	for i := start; i < len(f.Tags) && i < start+limit; i++ {
		page = append(page, f.Tags[i])
	}
	writeJSON(w, http.StatusOK, page)
}

func (f *FakeCMS) createTag(w http.ResponseWriter, r *http.Request) {
	var payload strapi.TagPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	tg := strapi.Tag{ID: f.nextID, Name: payload.Name}
	f.nextID++
	f.Tags = append(f.Tags, tg)
	writeJSON(w, http.StatusOK, tg)
}

// SeedMessages preloads the store with messages belonging to a group,
// assigning fresh ids.
func (f *FakeCMS) SeedMessages(groupID int, msgs ...strapi.RemoteMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		m.ID = f.nextID
		f.nextID++
		f.Messages = append(f.Messages, storedMessage{RemoteMessage: m, Group: groupID})
	}
}

// MessageCount returns the number of stored messages.
func (f *FakeCMS) MessageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Messages)
}

// MessagesFor returns the stored messages belonging to a group id, in
// insertion order.
func (f *FakeCMS) MessagesFor(groupID int) []strapi.RemoteMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []strapi.RemoteMessage
	for _, m := range f.Messages {
		if m.Group == groupID {
			out = append(out, m.RemoteMessage)
		}
	}
	return out
}

func paging(r *http.Request) (start, limit int) {
	start, _ = strconv.Atoi(r.URL.Query().Get("_start"))
	limit, err := strconv.Atoi(r.URL.Query().Get("_limit"))
	if err != nil || limit <= 0 {
		limit = strapi.PageSize
	}
	return start, limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}
