package fakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Server is an in-memory stand-in for a json-server API with
// json-server-auth style registration, login and guarded routes.
type Server struct {
	router  *Router
	store   *Store
	port    int
	delay   time.Duration
	verbose bool
	seed    int
	logger  *log.Logger
}

// Option is a functional option for Server
type Option func(*Server)

// WithPort sets the server port
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithDelay adds a delay to all responses
func WithDelay(delay time.Duration) Option {
	return func(s *Server) {
		s.delay = delay
	}
}

// WithVerbose logs every request
func WithVerbose(verbose bool) Option {
	return func(s *Server) {
		s.verbose = verbose
	}
}

// WithPosts seeds the store with n posts instead of DefaultPosts.
func WithPosts(n int) Option {
	return func(s *Server) {
		s.seed = n
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		router: NewRouter(),
		port:   3000,
		seed:   DefaultPosts,
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = NewStore(s.seed)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Handle(http.MethodGet, "/posts", s.listPosts)
	s.router.Handle(http.MethodPost, "/posts", s.createPost)
	s.router.Handle(http.MethodGet, "/posts/{id}", s.getPost)
	s.router.Handle(http.MethodPut, "/posts/{id}", s.updatePost)
	s.router.Handle(http.MethodDelete, "/posts/{id}", s.deletePost)

	for _, path := range []string{"/register", "/signup", "/users"} {
		s.router.Handle(http.MethodPost, path, s.register)
	}
	for _, path := range []string{"/login", "/signin"} {
		s.router.Handle(http.MethodPost, path, s.login)
	}
}

// Store exposes the backing store, e.g. to inspect state in tests.
func (s *Server) Store() *Store {
	return s.store
}

// Reset restores the seeded posts and forgets every user and token.
func (s *Server) Reset() {
	s.store.Reset(s.seed)
}

// Routes lists the unguarded routes the server answers.
func (s *Server) Routes() []*Route {
	return s.router.Routes()
}

// UnguardedPath strips a permission prefix such as /664 from path.
func UnguardedPath(path string) string {
	if m := guardPattern.FindStringSubmatch(path); m != nil {
		return m[2]
	}
	return path
}

// Handler returns the server's HTTP handler for use with httptest.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleRequest)
}

// Start serves on the configured port until the server fails.
func (s *Server) Start() error {
	return s.StartWithContext(context.Background())
}

// StartWithContext starts the server with context for graceful shutdown
func (s *Server) StartWithContext(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("Fake API listening on http://%s", ln.Addr())
	if s.verbose {
		for _, route := range s.router.Routes() {
			s.logger.Printf("  %s %s", route.Method, route.PathPattern)
		}
	}

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// guardPattern matches json-server-auth guarded routes such as /664/posts.
var guardPattern = regexp.MustCompile(`^/([0-7]{3})(/.*)$`)

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.dispatch(rec, r)

	if s.verbose {
		s.logger.Printf("%s %s -> %d (%s)", r.Method, r.URL.RequestURI(), rec.status, time.Since(start))
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if m := guardPattern.FindStringSubmatch(path); m != nil {
		if status, err := s.checkGuard(m[1], r); err != nil {
			writeJSON(w, status, err.Error())
			return
		}
		path = m[2]
	}

	route, params, allowed := s.router.Match(r.Method, path)
	if route == nil {
		if len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	route.Handler(w, r, params)
}

// checkGuard applies a permission triple like 664: the second digit covers
// logged-in users and the third everyone else. 6 allows read and write, 4
// read only, 0 nothing.
func (s *Server) checkGuard(mode string, r *http.Request) (int, error) {
	write := r.Method != http.MethodGet && r.Method != http.MethodHead
	allows := func(digit byte) bool {
		perm := int(digit - '0')
		if write {
			return perm&2 != 0
		}
		return perm&4 != 0
	}

	if allows(mode[2]) {
		return 0, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return http.StatusUnauthorized, ErrMissingToken
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return http.StatusUnauthorized, ErrMissingToken
	}
	if _, err := s.store.Authenticate(strings.TrimSpace(token)); err != nil {
		return http.StatusUnauthorized, err
	}
	if !allows(mode[1]) {
		return http.StatusForbidden, errors.New("private resource access: entity must have a reference to the owner id")
	}
	return 0, nil
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	query := r.URL.Query()
	posts := s.store.Posts()

	filtered := posts[:0]
	for _, p := range posts {
		if matchesQuery(p, query) {
			filtered = append(filtered, p)
		}
	}

	if raw := query.Get("_limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 && n < len(filtered) {
			filtered = filtered[:n]
		}
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(len(filtered)))
	writeJSON(w, http.StatusOK, filtered)
}

// matchesQuery applies field filters. Repeated keys are OR-ed, distinct keys
// AND-ed, and keys starting with '_' are options rather than filters.
func matchesQuery(rec Record, query map[string][]string) bool {
	for key, values := range query {
		if strings.HasPrefix(key, "_") {
			continue
		}
		got := fmt.Sprint(rec[key])
		found := false
		for _, v := range values {
			if got == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Server) getPost(w http.ResponseWriter, _ *http.Request, params map[string]string) {
	id, ok := parseID(params["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	post, err := s.store.Post(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	rec, err := readRecord(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	post := s.store.CreatePost(rec)
	w.Header().Set("Location", fmt.Sprintf("http://%s/posts/%d", r.Host, post.ID()))
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, ok := parseID(params["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	rec, err := readRecord(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	post, err := s.store.ReplacePost(id, rec)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) deletePost(w http.ResponseWriter, _ *http.Request, params map[string]string) {
	id, ok := parseID(params["id"])
	if !ok || s.store.DeletePost(id) != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

type authResponse struct {
	AccessToken string `json:"accessToken"`
	User        Record `json:"user"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	rec, err := readRecord(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	user, token, err := s.store.Register(rec)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{AccessToken: token, User: user})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	rec, err := readRecord(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	user, token, err := s.store.Login(rec)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, authResponse{AccessToken: token, User: user})
}

// readRecord decodes a JSON object body. Numbers that are whole stay ints so
// ids and ages round-trip unchanged.
func readRecord(r *http.Request) (Record, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Record{}, nil
	}
	if ct := r.Header.Get("Content-Type"); !strings.Contains(ct, "json") {
		return nil, fmt.Errorf("unsupported content type %q", ct)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("body must be a JSON object: %w", err)
	}
	for k, v := range rec {
		if f, ok := v.(float64); ok && f == float64(int(f)) {
			rec[k] = int(f)
		}
	}
	return rec, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
