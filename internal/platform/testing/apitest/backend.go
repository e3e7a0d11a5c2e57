// Package apitest runs an in-process stand-in for the platform backend so the
// client's HTTP paths can be exercised end to end.
package apitest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Endpoint paths relative to BaseURL.
const (
	PathLogin     = "/auth/login"
	PathRefresh   = "/auth/refresh"
	PathLogout    = "/auth/logout"
	PathIdentity  = "/user/info"
	PathResources = "/resources"
	PathEcho      = "/echo"

	RefreshCookie = "refresh_token"
)

// User is a principal known to the backend.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
	password      string
}

// Resource is the off-chain record stored by the backend.
type Resource struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	ContentAddress string    `json:"contentAddress"`
	Owner          string    `json:"owner"`
	FileName       string    `json:"fileName,omitempty"`
	Size           int64     `json:"size"`
	TokenID        string    `json:"tokenId,omitempty"`
	TxHash         string    `json:"txHash,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Captured is one request as the backend saw it.
type Captured struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	Body          []byte
}

// Backend is the stub server. All knobs are safe for concurrent use.
type Backend struct {
	server *httptest.Server
	issuer *TokenIssuer

	mu        sync.Mutex
	users     map[string]*User
	secrets   map[string]string // refresh secret -> username
	valid     map[string]string // credential -> username
	resources map[string]*Resource
	order     []string
	counts    map[string]int
	captured  []Captured

	failRefresh      bool
	refreshNoToken   bool
	failIdentity     bool
	failLogout       bool
	alwaysReject     bool
	refreshGate      chan struct{}
	failResourceCode int
}

// New starts a backend with a single user alice/secret.
func New() *Backend {
	gin.SetMode(gin.TestMode)

	b := &Backend{
		issuer:    NewTokenIssuer("apitest-secret"),
		users:     map[string]*User{},
		secrets:   map[string]string{},
		valid:     map[string]string{},
		resources: map[string]*Resource{},
		counts:    map[string]int{},
	}
	b.AddUser(User{ID: "u-1", Username: "alice", Email: "alice@example.com", Role: "student"}, "secret")

	router := gin.New()
	router.Use(b.capture())
	api := router.Group("/api")
	api.POST(PathLogin, b.handleLogin)
	api.POST(PathRefresh, b.handleRefresh)
	api.POST(PathLogout, b.handleLogout)

	protected := api.Group("", b.requireBearer())
	protected.GET(PathIdentity, b.handleIdentity)
	protected.Any(PathEcho, b.handleEcho)
	protected.POST(PathResources, b.handleCreateResource)
	protected.GET(PathResources, b.handleSearchResources)
	protected.GET(PathResources+"/:id", b.handleGetResource)
	protected.PUT(PathResources+"/:id/ledger", b.handleAttachLedger)

	b.server = httptest.NewServer(router)
	return b
}

// Close stops the server.
func (b *Backend) Close() {
	b.server.Close()
}

// BaseURL is the API root clients should target.
func (b *Backend) BaseURL() string {
	return b.server.URL + "/api"
}

// AddUser registers a principal.
func (b *Backend) AddUser(u User, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u.password = password
	b.users[u.Username] = &u
}

// IssueCredential mints a valid access token for username without a login round trip.
func (b *Backend) IssueCredential(username string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(username)
}

// Expire revokes a single access token so the next use of it yields 401.
func (b *Backend) Expire(credential string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.valid, credential)
}

// FailRefresh makes the refresh endpoint reject every call with 401.
func (b *Backend) FailRefresh(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failRefresh = fail
}

// RefreshWithoutToken makes refresh answer code 0 with an empty accessToken.
func (b *Backend) RefreshWithoutToken(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshNoToken = enabled
}

// FailIdentity makes the identity endpoint answer 500.
func (b *Backend) FailIdentity(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failIdentity = fail
}

// FailLogout makes the logout endpoint answer 500.
func (b *Backend) FailLogout(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failLogout = fail
}

// RejectAll makes every protected endpoint answer 401 regardless of the credential.
func (b *Backend) RejectAll(reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alwaysReject = reject
}

// FailResources makes resource endpoints answer with the given envelope code. Zero disables.
func (b *Backend) FailResources(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failResourceCode = code
}

// HoldRefresh blocks refresh handlers until the returned release func is called.
func (b *Backend) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.refreshGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.refreshGate = nil
			b.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many requests hit "METHOD path", e.g. "POST /auth/refresh".
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[route]
}

// Captured returns every request received for route in arrival order.
func (b *Backend) Captured(route string) []Captured {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Captured
	for _, c := range b.captured {
		if c.Method+" "+c.Path == route {
			out = append(out, c)
		}
	}
	return out
}

// Resource returns a stored resource.
func (b *Backend) Resource(id string) (Resource, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.resources[id]
	if !ok {
		return Resource{}, false
	}
	return *r, true
}

// PutResource stores a resource directly.
func (b *Backend) PutResource(r Resource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if _, exists := b.resources[r.ID]; !exists {
		b.order = append(b.order, r.ID)
	}
	b.resources[r.ID] = &r
}

func (b *Backend) issueLocked(username string) string {
	user, ok := b.users[username]
	id := username
	if ok {
		id = user.ID
	}
	token, err := b.issuer.Issue(id, username)
	if err != nil {
		panic(err)
	}
	b.valid[token] = username
	return token
}

func (b *Backend) capture() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(strings.NewReader(string(body)))
		}
		path := strings.TrimPrefix(c.Request.URL.Path, "/api")

		b.mu.Lock()
		b.counts[c.Request.Method+" "+path]++
		b.captured = append(b.captured, Captured{
			Method:        c.Request.Method,
			Path:          path,
			Authorization: c.GetHeader("Authorization"),
			ContentType:   c.GetHeader("Content-Type"),
			Body:          body,
		})
		b.mu.Unlock()
		c.Next()
	}
}

func (b *Backend) requireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")

		b.mu.Lock()
		username, ok := b.valid[token]
		reject := b.alwaysReject
		b.mu.Unlock()

		if reject || header == token || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "unauthorized"})
			return
		}
		if _, err := b.issuer.Verify(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "message": err.Error()})
			return
		}
		c.Set("username", username)
		c.Next()
	}
}

func (b *Backend) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, 400, "invalid body")
		return
	}

	b.mu.Lock()
	user, ok := b.users[req.Username]
	if !ok || user.password != req.Password {
		b.mu.Unlock()
		respondError(c, http.StatusUnauthorized, 401, "invalid username or password")
		return
	}
	token := b.issueLocked(user.Username)
	secret := uuid.NewString()
	b.secrets[secret] = user.Username
	identity := *user
	b.mu.Unlock()

	c.SetCookie(RefreshCookie, secret, 3600, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"code": 0, "accessToken": token, "data": identity})
}

func (b *Backend) handleRefresh(c *gin.Context) {
	b.mu.Lock()
	gate := b.refreshGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	secret, _ := c.Cookie(RefreshCookie)

	b.mu.Lock()
	defer b.mu.Unlock()
	username, ok := b.secrets[secret]
	if b.failRefresh || !ok {
		respondError(c, http.StatusUnauthorized, 401, "refresh rejected")
		return
	}
	if b.refreshNoToken {
		c.JSON(http.StatusOK, gin.H{"code": 0, "accessToken": ""})
		return
	}
	token := b.issueLocked(username)
	identity := *b.users[username]
	c.JSON(http.StatusOK, gin.H{"code": 0, "accessToken": token, "data": identity})
}

func (b *Backend) handleLogout(c *gin.Context) {
	secret, _ := c.Cookie(RefreshCookie)

	b.mu.Lock()
	fail := b.failLogout
	if !fail {
		delete(b.secrets, secret)
	}
	b.mu.Unlock()

	if fail {
		respondError(c, http.StatusInternalServerError, 500, "logout unavailable")
		return
	}
	c.SetCookie(RefreshCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"code": 0})
}

func (b *Backend) handleIdentity(c *gin.Context) {
	b.mu.Lock()
	fail := b.failIdentity
	user := b.users[c.GetString("username")]
	b.mu.Unlock()

	if fail || user == nil {
		respondError(c, http.StatusInternalServerError, 500, "identity unavailable")
		return
	}
	respondData(c, *user)
}

func (b *Backend) handleEcho(c *gin.Context) {
	body, _ := io.ReadAll(c.Request.Body)
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
		"method":      c.Request.Method,
		"contentType": c.GetHeader("Content-Type"),
		"body":        string(body),
		"user":        c.GetString("username"),
	}})
}

func (b *Backend) resourceFailure(c *gin.Context) bool {
	b.mu.Lock()
	code := b.failResourceCode
	b.mu.Unlock()
	if code == 0 {
		return false
	}
	respondError(c, http.StatusOK, code, "resource service unavailable")
	return true
}

func (b *Backend) handleCreateResource(c *gin.Context) {
	if b.resourceFailure(c) {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, 400, "file is required")
		return
	}
	contentAddress := c.PostForm("contentAddress")
	if contentAddress == "" {
		respondError(c, http.StatusBadRequest, 400, "contentAddress is required")
		return
	}

	res := Resource{
		ID:             uuid.NewString(),
		Title:          c.PostForm("title"),
		Description:    c.PostForm("description"),
		ContentAddress: contentAddress,
		Owner:          c.PostForm("owner"),
		FileName:       header.Filename,
		Size:           header.Size,
		CreatedAt:      time.Now().UTC(),
	}
	b.PutResource(res)
	respondData(c, res)
}

func (b *Backend) handleGetResource(c *gin.Context) {
	if b.resourceFailure(c) {
		return
	}
	res, ok := b.Resource(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, 404, "resource not found")
		return
	}
	respondData(c, res)
}

func (b *Backend) handleAttachLedger(c *gin.Context) {
	if b.resourceFailure(c) {
		return
	}
	var req struct {
		TokenID string `json:"tokenId"`
		TxHash  string `json:"txHash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.TokenID == "" {
		respondError(c, http.StatusBadRequest, 400, "tokenId is required")
		return
	}

	b.mu.Lock()
	res, ok := b.resources[c.Param("id")]
	if ok {
		res.TokenID = req.TokenID
		res.TxHash = req.TxHash
	}
	var out Resource
	if ok {
		out = *res
	}
	b.mu.Unlock()

	if !ok {
		respondError(c, http.StatusNotFound, 404, "resource not found")
		return
	}
	respondData(c, out)
}

func (b *Backend) handleSearchResources(c *gin.Context) {
	if b.resourceFailure(c) {
		return
	}
	query := strings.ToLower(c.Query("q"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	b.mu.Lock()
	matched := make([]Resource, 0, len(b.order))
	for _, id := range b.order {
		r := b.resources[id]
		if query == "" || strings.Contains(strings.ToLower(r.Title), query) || strings.Contains(strings.ToLower(r.Description), query) {
			matched = append(matched, *r)
		}
	}
	b.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	total := len(matched)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
		"items": matched[start:end],
		"total": total,
		"page":  page,
		"size":  size,
	}})
}

// Route formats a counter key.
func Route(method, path string) string {
	return fmt.Sprintf("%s %s", method, path)
}
