package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/product-catalog/internal/config"
)

// =========================================================================
// HELPERS
// =========================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.SessionSecret = "end-to-end-test-secret-0123456789"
	cfg.BcryptCost = 4
	require.NoError(t, cfg.Validate())

	srv, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

// browser is a cookie-keeping client that follows redirects, so every call
// ends on a rendered page.
type browser struct {
	t    *testing.T
	base string
	http *http.Client
}

func newBrowser(t *testing.T, ts *httptest.Server) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, base: ts.URL, http: &http.Client{Jar: jar}}
}

type page struct {
	status int
	path   string
	body   string
}

func (b *browser) finish(resp *http.Response, err error) page {
	b.t.Helper()
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return page{status: resp.StatusCode, path: resp.Request.URL.Path, body: string(body)}
}

func (b *browser) get(path string) page {
	b.t.Helper()
	return b.finish(b.http.Get(b.base + path))
}

func (b *browser) post(path string, form url.Values) page {
	b.t.Helper()
	return b.finish(b.http.PostForm(b.base+path, form))
}

func (b *browser) signup(email, password string) page {
	b.t.Helper()
	return b.post("/signup", url.Values{"email": {email}, "password": {password}})
}

func (b *browser) login(email, password string) page {
	b.t.Helper()
	return b.post("/login", url.Values{"email": {email}, "password": {password}})
}

func (b *browser) createProduct(image, name, description string) page {
	b.t.Helper()
	return b.post("/product/create", url.Values{"image": {image}, "name": {name}, "description": {description}})
}

func productCount(body string) int {
	return strings.Count(body, `<li class="product">`)
}

// =========================================================================
// END-TO-END SCENARIOS
// =========================================================================

func TestScenario_SignupLoginCreateLogout(t *testing.T) {
	ts := newTestServer(t)
	b := newBrowser(t, ts)

	p := b.signup("a@x.com", "pw1")
	assert.Equal(t, "/login", p.path)
	assert.Contains(t, p.body, "Account created successfully! Please log in.")

	p = b.login("a@x.com", "pw1")
	require.Equal(t, "/dashboard", p.path)
	assert.Equal(t, http.StatusOK, p.status)

	p = b.createProduct("img.png", "Widget", "A widget")
	require.Equal(t, "/dashboard", p.path)
	assert.Equal(t, 1, productCount(p.body))
	assert.Contains(t, p.body, "Widget")

	p = b.get("/logout")
	assert.Equal(t, "/login", p.path)
	assert.Contains(t, p.body, "You have been logged out.")

	p = b.login("a@x.com", "wrong")
	assert.Equal(t, "/signup", p.path)
	assert.Contains(t, p.body, "Account not found. Please sign up.")

	p = b.get("/dashboard")
	assert.Equal(t, "/login", p.path, "a failed login must not restore the session")
	assert.Contains(t, p.body, "Please log in to access this page.")
}

func TestScenario_OwnershipIsolation(t *testing.T) {
	ts := newTestServer(t)
	alice := newBrowser(t, ts)
	bob := newBrowser(t, ts)

	alice.signup("alice@x.com", "pw-a")
	alice.login("alice@x.com", "pw-a")
	p := alice.createProduct("a.png", "Alice's widget", "mine")
	require.Equal(t, 1, productCount(p.body))
	require.Contains(t, p.body, "/product/update/1")

	bob.signup("bob@x.com", "pw-b")
	bob.login("bob@x.com", "pw-b")

	p = bob.post("/product/update/1", url.Values{"image": {"x"}, "name": {"stolen"}, "description": {"x"}})
	assert.Equal(t, "/dashboard", p.path)
	assert.Contains(t, p.body, "You do not have permission to modify that product.")
	assert.Equal(t, 0, productCount(p.body))

	p = bob.get("/product/update/1")
	assert.Equal(t, "/dashboard", p.path)

	p = bob.post("/product/delete/1", nil)
	assert.Equal(t, "/dashboard", p.path)

	p = bob.get("/product/update/999")
	assert.Equal(t, http.StatusNotFound, p.status, "a missing id is not found, not forbidden")

	p = alice.get("/dashboard")
	require.Equal(t, 1, productCount(p.body))
	assert.Contains(t, p.body, "Alice&#39;s widget")
	assert.NotContains(t, p.body, "stolen")
}

// =========================================================================
// PROPERTIES
// =========================================================================

func TestUpdateAndDelete(t *testing.T) {
	ts := newTestServer(t)
	b := newBrowser(t, ts)
	b.signup("a@x.com", "pw1")
	b.login("a@x.com", "pw1")
	b.createProduct("img.png", "Widget", "A widget")

	p := b.get("/product/update/1")
	require.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, `value="Widget"`)

	p = b.post("/product/update/1", url.Values{"image": {"img2"}, "name": {"name2"}, "description": {"desc2"}})
	require.Equal(t, "/dashboard", p.path)

	p = b.get("/product/update/1")
	assert.Contains(t, p.body, `value="img2"`)
	assert.Contains(t, p.body, `value="name2"`)
	assert.Contains(t, p.body, "desc2</textarea>")

	p = b.post("/product/delete/1", nil)
	require.Equal(t, "/dashboard", p.path)
	assert.Equal(t, 0, productCount(p.body))

	p = b.get("/product/update/1")
	assert.Equal(t, http.StatusNotFound, p.status)
}

func TestInputIsNotNormalized(t *testing.T) {
	ts := newTestServer(t)
	b := newBrowser(t, ts)
	b.signup("a@x.com", "pw1")

	p := b.login(" a@x.com", "pw1")
	assert.Equal(t, "/signup", p.path, "a padded email is not the stored email")
	assert.Contains(t, p.body, "Account not found. Please sign up.")

	p = b.login("a@x.com", "pw1")
	require.Equal(t, "/dashboard", p.path)
	b.createProduct("img.png", "Widget", "A widget")

	p = b.post("/product/update/1", url.Values{"image": {" img2"}, "name": {"  name2  "}, "description": {"desc2 "}})
	require.Equal(t, "/dashboard", p.path)

	p = b.get("/product/update/1")
	assert.Contains(t, p.body, `value=" img2"`)
	assert.Contains(t, p.body, `value="  name2  "`)
	assert.Contains(t, p.body, "desc2 </textarea>")
}

func TestCreate_ValidationReturnsToForm(t *testing.T) {
	ts := newTestServer(t)
	b := newBrowser(t, ts)
	b.signup("a@x.com", "pw1")
	b.login("a@x.com", "pw1")

	p := b.createProduct("img.png", "", "A widget")
	assert.Equal(t, "/product/create", p.path)
	assert.Contains(t, p.body, "Name is required.")

	p = b.get("/dashboard")
	assert.Equal(t, 0, productCount(p.body))
}

func TestSignup_DuplicateEmail(t *testing.T) {
	ts := newTestServer(t)
	b := newBrowser(t, ts)

	b.signup("a@x.com", "pw1")
	p := b.signup("a@x.com", "other")
	assert.Equal(t, "/login", p.path)
	assert.Contains(t, p.body, "Email already in use. Please log in.")

	p = b.login("a@x.com", "other")
	assert.Equal(t, "/signup", p.path, "the second signup must not have replaced the password")
}

func TestSignup_ConcurrentSameEmail(t *testing.T) {
	ts := newTestServer(t)

	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	const n = 10
	cookies := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := noRedirect.PostForm(ts.URL+"/signup", url.Values{"email": {"race@x.com"}, "password": {"pw"}})
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()
			assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
			for _, c := range resp.Cookies() {
				if c.Name == "catalog_flash" {
					cookies[i] = c.Value
				}
			}
		}(i)
	}
	wg.Wait()

	var created, duplicate int
	for _, c := range cookies {
		switch decodeFlash(t, c) {
		case "Account created successfully! Please log in.":
			created++
		case "Email already in use. Please log in.":
			duplicate++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, duplicate)

	b := newBrowser(t, ts)
	assert.Equal(t, "/dashboard", b.login("race@x.com", "pw").path)
}

func decodeFlash(t *testing.T, value string) string {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(value)
	require.NoError(t, err)
	var msgs []string
	require.NoError(t, json.Unmarshal(raw, &msgs))
	require.Len(t, msgs, 1)
	return msgs[0]
}

func TestSession_PersistsUntilLogout(t *testing.T) {
	ts := newTestServer(t)
	b := newBrowser(t, ts)
	b.signup("a@x.com", "pw1")
	b.login("a@x.com", "pw1")

	for i := 0; i < 3; i++ {
		p := b.get("/dashboard")
		assert.Equal(t, "/dashboard", p.path)
	}
	assert.Contains(t, b.get("/").body, "Log out")

	// Logging out twice is fine and leaves the client anonymous.
	for i := 0; i < 2; i++ {
		p := b.get("/logout")
		assert.Equal(t, "/login", p.path)
		assert.Contains(t, p.body, "You have been logged out.")
	}
	assert.Equal(t, "/login", b.get("/dashboard").path)
}

func TestSession_IsolatedPerClient(t *testing.T) {
	ts := newTestServer(t)
	a := newBrowser(t, ts)
	other := newBrowser(t, ts)

	a.signup("a@x.com", "pw1")
	a.login("a@x.com", "pw1")

	assert.Equal(t, "/dashboard", a.get("/dashboard").path)
	assert.Equal(t, "/login", other.get("/dashboard").path)
}

func TestFlash_ShownExactlyOnce(t *testing.T) {
	ts := newTestServer(t)
	b := newBrowser(t, ts)

	p := b.get("/logout")
	require.Contains(t, p.body, "You have been logged out.")

	p = b.get("/login")
	assert.NotContains(t, p.body, "You have been logged out.")
}

func TestProductID_NonNumericIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	b := newBrowser(t, ts)
	b.signup("a@x.com", "pw1")
	b.login("a@x.com", "pw1")

	for _, path := range []string{"/product/update/abc", "/product/update/0", "/product/update/-3"} {
		p := b.get(path)
		assert.Equal(t, http.StatusNotFound, p.status, path)
		assert.Contains(t, p.body, "Page not found")
	}
	assert.Equal(t, http.StatusNotFound, b.post("/product/delete/abc", nil).status)
}

func TestProductID_NonNumericIsNotFoundWhenAnonymous(t *testing.T) {
	ts := newTestServer(t)
	b := newBrowser(t, ts)

	for _, path := range []string{"/product/update/abc", "/product/update/-3"} {
		p := b.get(path)
		assert.Equal(t, http.StatusNotFound, p.status, path)
		assert.Equal(t, path, p.path, "no redirect to /login")
	}
	assert.Equal(t, http.StatusNotFound, b.post("/product/delete/abc", nil).status)
}

func TestProtectedRoutes_RequireLogin(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/dashboard", "/product/create", "/product/update/1"} {
		b := newBrowser(t, ts)
		p := b.get(path)
		assert.Equal(t, "/login", p.path, path)
		assert.Contains(t, p.body, "Please log in to access this page.")
	}
}

// =========================================================================
// OPERATIONAL ENDPOINTS
// =========================================================================

func TestOperationalEndpoints(t *testing.T) {
	ts := newTestServer(t)
	b := newBrowser(t, ts)

	p := b.get("/healthz")
	assert.Equal(t, http.StatusOK, p.status)
	assert.Equal(t, "ok\n", p.body)

	p = b.get("/static/style.css")
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, ".flash")

	b.get("/")
	p = b.get("/metrics")
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, "catalog_http_requests_total")

	p = b.get("/no/such/page")
	assert.Equal(t, http.StatusNotFound, p.status)
	assert.Contains(t, p.body, "Page not found")
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth_ChecksEverySessionStore(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.SessionSecret = "end-to-end-test-secret-0123456789"
	srv, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.pingers = append(srv.pingers, downStore{})

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable\n", rec.Body.String())
}
