package archive

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeServer is an in-memory archive speaking the entity and ingest APIs.
type fakeServer struct {
	*httptest.Server

	mu        sync.Mutex
	nextToken int
	valid     map[string]bool
	refreshes map[string]bool
	entities  []Entity // insertion order
	uploads   map[string][]byte
	bodies    []string

	logins      atomic.Int32
	refreshHits atomic.Int32

	pageSize    int
	failRefresh bool
	uploadCode  int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{
		valid:     map[string]bool{},
		refreshes: map[string]bool{},
		uploads:   map[string][]byte{},
		pageSize:  2,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/accesstoken/login", s.login)
	mux.HandleFunc("POST /api/accesstoken/refresh", s.refresh)
	mux.HandleFunc("GET /api/entity/root/children", s.authed(s.children))
	mux.HandleFunc("GET /api/entity/structural-objects/{ref}/children", s.authed(s.children))
	mux.HandleFunc("GET /api/entity/structural-objects/{ref}", s.authed(s.folder))
	mux.HandleFunc("POST /api/entity/structural-objects", s.authed(s.create))
	mux.HandleFunc("POST /api/upload", s.authed(s.upload))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) client(opts ...Option) *Client {
	return NewClient(s.URL, Credentials{Username: "user", Password: "pass"}, opts...)
}

func (s *fakeServer) add(e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = append(s.entities, e)
}

func (s *fakeServer) setUploadStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadCode = code
}

func (s *fakeServer) setFailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

func (s *fakeServer) uploaded(name string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads[name]
}

func (s *fakeServer) createBodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bodies...)
}

// expire invalidates every issued access token.
func (s *fakeServer) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = map[string]bool{}
}

func (s *fakeServer) issue(w http.ResponseWriter) {
	s.mu.Lock()
	s.nextToken++
	token := fmt.Sprintf("tok-%d", s.nextToken)
	refresh := fmt.Sprintf("ref-%d", s.nextToken)
	s.valid[token] = true
	s.refreshes[refresh] = true
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{Success: true, Token: token, RefreshToken: refresh, ValidFor: 15})
}

func (s *fakeServer) login(w http.ResponseWriter, r *http.Request) {
	s.logins.Add(1)
	if r.FormValue("username") != "user" || r.FormValue("password") != "pass" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "<error><message>bad credentials</message></error>")
		return
	}
	s.issue(w)
}

func (s *fakeServer) refresh(w http.ResponseWriter, r *http.Request) {
	s.refreshHits.Add(1)
	s.mu.Lock()
	ok := !s.failRefresh && s.refreshes[r.URL.Query().Get("refreshToken")]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.issue(w)
}

func (s *fakeServer) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		ok := s.valid[r.Header.Get(TokenHeader)]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *fakeServer) children(w http.ResponseWriter, r *http.Request) {
	parent := r.PathValue("ref")
	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("max"))
	if limit == 0 || limit > s.pageSize {
		limit = s.pageSize
	}

	s.mu.Lock()
	var all []Entity
	for _, e := range s.entities {
		if e.Parent == parent {
			all = append(all, e)
		}
	}
	s.mu.Unlock()

	var resp childrenResponse
	resp.Paging.TotalResults = len(all)
	for i := start; i < len(all) && i < start+limit; i++ {
		resp.Children = append(resp.Children, child{Ref: all[i].Ref, Title: all[i].Title, Type: string(all[i].Type)})
	}
	if start+limit < len(all) {
		resp.Paging.Next = fmt.Sprintf("%s%s?start=%d&max=%d", s.URL, r.URL.Path, start+limit, limit)
	}
	writeXML(w, http.StatusOK, resp)
}

func (s *fakeServer) folder(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if e.Ref == ref && e.IsFolder() {
			var resp entityResponse
			resp.Object.Ref, resp.Object.Title, resp.Object.Parent = e.Ref, e.Title, e.Parent
			writeXML(w, http.StatusOK, resp)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *fakeServer) create(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var so structuralObject
	if err := xml.Unmarshal(raw, &so); err != nil || so.Title == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.bodies = append(s.bodies, string(raw))
	s.mu.Unlock()
	s.add(Entity{Ref: so.Ref, Title: so.Title, Type: TypeFolder, Parent: so.Parent})

	var resp entityResponse
	resp.Object.Ref, resp.Object.Title, resp.Object.Parent = so.Ref, so.Title, so.Parent
	writeXML(w, http.StatusOK, resp)
}

func (s *fakeServer) upload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	code := s.uploadCode
	s.mu.Unlock()
	if code != 0 {
		w.WriteHeader(code)
		return
	}
	name := r.URL.Query().Get("filename")
	s.mu.Lock()
	s.uploads[name] = data
	s.mu.Unlock()
	s.add(Entity{Ref: "IO-" + name, Title: name, Type: TypeAsset, Parent: r.URL.Query().Get("parent")})

	writeXML(w, http.StatusOK, uploadResponse{Reference: "IO-" + name})
}

func writeXML(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(code)
	_ = xml.NewEncoder(w).Encode(v)
}
