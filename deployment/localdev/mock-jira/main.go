package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

var labelClause = regexp.MustCompile(`labels = "([^"]+)"`)

type issue struct {
	Key      string    `json:"key"`
	Summary  string    `json:"summary"`
	Labels   []string  `json:"labels"`
	Comments int       `json:"comments"`
	Created  time.Time `json:"created"`
}

// tracker is an in-memory stand-in for the Jira Cloud endpoints the relay calls.
type tracker struct {
	mu      sync.Mutex
	project string
	issues  []*issue
}

func newTracker(project string) *tracker {
	return &tracker{project: project}
}

func (t *tracker) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/issues", t.list)
	for _, version := range []string{"2", "3"} {
		prefix := "/rest/api/" + version
		mux.HandleFunc(prefix+"/issue", t.create)
		mux.HandleFunc(prefix+"/issue/", t.comment)
		mux.HandleFunc(prefix+"/search", t.search)
		mux.HandleFunc(prefix+"/search/jql", t.search)
		mux.HandleFunc(prefix+"/user/search", t.users)
		mux.HandleFunc(prefix+"/project/", t.projectInfo)
	}
	return requireAuth(mux)
}

func (t *tracker) create(w http.ResponseWriter, r *http.Request) {
	if !enforceMethod(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Fields struct {
			Summary string   `json:"summary"`
			Labels  []string `json:"labels"`
		} `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Fields.Summary) == "" {
		writeError(w, http.StatusBadRequest, "Field 'summary' is required")
		return
	}

	t.mu.Lock()
	key := fmt.Sprintf("%s-%d", t.project, len(t.issues)+1)
	t.issues = append(t.issues, &issue{Key: key, Summary: body.Fields.Summary, Labels: body.Fields.Labels, Created: time.Now().UTC()})
	t.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"id": key, "key": key})
}

func (t *tracker) comment(w http.ResponseWriter, r *http.Request) {
	if !enforceMethod(w, r, http.MethodPost) {
		return
	}
	rest := r.URL.Path[strings.Index(r.URL.Path, "/issue/")+len("/issue/"):]
	key, suffix, _ := strings.Cut(rest, "/")
	if suffix != "comment" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, is := range t.issues {
		if is.Key == key {
			is.Comments++
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, map[string]any{"id": fmt.Sprint(is.Comments)})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Issue does not exist or you do not have permission to see it.")
}

func (t *tracker) search(w http.ResponseWriter, r *http.Request) {
	if !enforceMethod(w, r, http.MethodGet) {
		return
	}
	var label string
	if m := labelClause.FindStringSubmatch(r.URL.Query().Get("jql")); m != nil {
		label = m[1]
	}

	type hit struct {
		Key string `json:"key"`
	}
	hits := []hit{}
	t.mu.Lock()
	for _, is := range t.issues {
		for _, l := range is.Labels {
			if l == label {
				hits = append(hits, hit{Key: is.Key})
				break
			}
		}
	}
	t.mu.Unlock()
	writeJSON(w, map[string]any{"issues": hits})
}

func (t *tracker) users(w http.ResponseWriter, r *http.Request) {
	if !enforceMethod(w, r, http.MethodGet) {
		return
	}
	email := r.URL.Query().Get("query")
	if !strings.Contains(email, "@") {
		writeJSON(w, []any{})
		return
	}
	writeJSON(w, []map[string]any{{
		"accountId":    "mock-" + strings.SplitN(email, "@", 2)[0],
		"emailAddress": email,
		"active":       true,
	}})
}

func (t *tracker) projectInfo(w http.ResponseWriter, r *http.Request) {
	if !enforceMethod(w, r, http.MethodGet) {
		return
	}
	key := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	if !strings.EqualFold(key, t.project) {
		writeError(w, http.StatusNotFound, "No project could be found with key '"+key+"'.")
		return
	}
	writeJSON(w, map[string]string{"key": t.project, "name": "Mock " + t.project})
}

func (t *tracker) list(w http.ResponseWriter, _ *http.Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	writeJSON(w, t.issues)
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	project := flag.String("project", "OPS", "project key")
	flag.Parse()

	logger := log.New(log.Writer(), "jira-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(logger, newTracker(*project).routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Printf("listening on %s (project %s)", *addr, *project)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// requireAuth rejects API calls without basic credentials, as Jira Cloud does.
func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/rest/") {
			if user, token, ok := r.BasicAuth(); !ok || user == "" || token == "" {
				writeError(w, http.StatusUnauthorized, "Client must be authenticated to access this resource.")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func enforceMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"errorMessages": []string{message}, "errors": map[string]string{}})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
