package testserver

import (
	"encoding/json"
	"net/http"
	"sync"
)

// resourceStore holds collections per tenant: tenantID -> resource -> items.
type resourceStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]json.RawMessage
}

func newResourceStore() *resourceStore {
	return &resourceStore{data: make(map[string]map[string][]json.RawMessage)}
}

func (rs *resourceStore) set(tenantID, resource string, items []any) {
	raw := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			continue
		}
		raw = append(raw, b)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.data[tenantID]; !ok {
		rs.data[tenantID] = make(map[string][]json.RawMessage)
	}
	rs.data[tenantID][resource] = raw
}

func (rs *resourceStore) add(tenantID, resource string, item json.RawMessage) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.data[tenantID]; !ok {
		rs.data[tenantID] = make(map[string][]json.RawMessage)
	}
	rs.data[tenantID][resource] = append(rs.data[tenantID][resource], item)
}

func (rs *resourceStore) list(tenantID, resource string) []json.RawMessage {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	items := rs.data[tenantID][resource]
	out := make([]json.RawMessage, len(items))
	copy(out, items)
	return out
}

// ListResourceHandler handles GET /{resource}
func (s *Server) ListResourceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items := s.resources.list(r.Header.Get(HeaderTenantID), r.PathValue("resource"))
		writeJSON(w, http.StatusOK, items)
	}
}

// CreateResourceHandler handles POST /{resource}
func (s *Server) CreateResourceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var item json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil || len(item) == 0 {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		s.resources.add(r.Header.Get(HeaderTenantID), r.PathValue("resource"), item)
		writeJSON(w, http.StatusCreated, item)
	}
}
