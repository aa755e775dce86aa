// Package smartconnect is a minimal Angel One SmartAPI session client.
// The symbol sync pipeline uses it to obtain an authenticated session
// before hitting Angel's per-exchange scrip endpoints; public endpoints
// work without it.
//
// Usage:
//
//	sc := smartconnect.New(smartconnect.Config{APIKey: "your_api_key"})
//	session, err := sc.GenerateSessionWithSecret("CLIENTID", "PASSWORD", "TOTPSECRET")
//	if err != nil { log.Fatal(err) }
//	fmt.Println("Logged in as:", session.ClientCode)
package smartconnect

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// Config configures the SmartAPI client.
type Config struct {
	APIKey      string
	AccessToken string

	RootURL  string        // default: https://apiconnect.angelone.in
	Timeout  time.Duration // default: 7s
	Debug    bool
	ProxyURL string // optional HTTP proxy URL

	ClientPublicIP string
	ClientLocalIP  string
	ClientMAC      string
}

// Session holds the tokens returned by a successful login.
type Session struct {
	ClientCode   string
	AccessToken  string
	RefreshToken string
	FeedToken    string
}

// Client talks to the SmartAPI REST surface.
type Client struct {
	apiKey       string
	accessToken  string
	refreshToken string

	rootURL string
	debug   bool

	httpClient *http.Client

	clientPublicIP string
	clientLocalIP  string
	clientMAC      string

	// Optional callback invoked on 403 TokenException.
	SessionExpiryHook func()
}

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",
	"api.search.scrip": "/rest/secure/angelbroking/order/v1/searchScrip",
}

// New initializes the client.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.ClientLocalIP == "" {
		cfg.ClientLocalIP = localIP()
	}
	if cfg.ClientPublicIP == "" {
		cfg.ClientPublicIP = cfg.ClientLocalIP
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = macAddress()
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	if cfg.ProxyURL != "" {
		if purl, err := url.Parse(cfg.ProxyURL); err == nil {
			tr.Proxy = http.ProxyURL(purl)
		}
	}

	return &Client{
		apiKey:         cfg.APIKey,
		accessToken:    cfg.AccessToken,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		debug:          cfg.Debug,
		httpClient:     &http.Client{Transport: tr, Timeout: cfg.Timeout},
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, address := range addrs {
			if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
				return ipNet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}

func macAddress() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

// AccessToken returns the current session token, empty before login.
func (c *Client) AccessToken() string { return c.accessToken }

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.clientLocalIP)
	h.Set("X-ClientPublicIP", c.clientPublicIP)
	h.Set("X-MACAddress", c.clientMAC)
	h.Set("X-PrivateKey", c.apiKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	if c.accessToken != "" {
		h.Set("Authorization", "Bearer "+c.accessToken)
	}
	return h
}

func (c *Client) post(route string, params map[string]any) (map[string]any, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}
	if params == nil {
		params = map[string]any{}
	}
	b, _ := json.Marshal(params)

	req, err := http.NewRequest(http.MethodPost, c.rootURL+uri, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header = c.requestHeaders()

	if c.debug {
		log.Printf("[smartconnect] POST %s params=%v", uri, params)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if c.debug {
		log.Printf("[smartconnect] response code=%d body=%s", resp.StatusCode, string(raw))
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("couldn't parse JSON response: %w", err)
	}

	// API error style: {"error_type": "TokenException", "message": "..."}
	if et, ok := out["error_type"].(string); ok && et != "" {
		if c.SessionExpiryHook != nil && resp.StatusCode == http.StatusForbidden && et == "TokenException" {
			c.SessionExpiryHook()
		}
		msg, _ := out["message"].(string)
		return out, fmt.Errorf("%s: %s", et, msg)
	}
	return out, nil
}

// GenerateSession logs in with an already-computed TOTP code and stores
// the returned tokens on the client.
func (c *Client) GenerateSession(clientCode, password, totpCode string) (*Session, error) {
	res, err := c.post("api.login", map[string]any{
		"clientcode": clientCode, "password": password, "totp": totpCode,
	})
	if err != nil {
		return nil, err
	}

	st, _ := res["status"].(bool)
	if !st {
		msg, _ := res["message"].(string)
		return nil, fmt.Errorf("login failed: %s", msg)
	}
	data, ok := res["data"].(map[string]any)
	if !ok {
		return nil, errors.New("unexpected login response format")
	}

	sess := &Session{ClientCode: clientCode}
	sess.AccessToken, _ = data["jwtToken"].(string)
	sess.RefreshToken, _ = data["refreshToken"].(string)
	sess.FeedToken, _ = data["feedToken"].(string)

	c.accessToken = sess.AccessToken
	c.refreshToken = sess.RefreshToken
	return sess, nil
}

// GenerateSessionWithSecret computes the current TOTP code from the
// shared secret and logs in. This is the path the sync daemon uses: the
// secret lives in config and codes are minted per login.
func (c *Client) GenerateSessionWithSecret(clientCode, password, totpSecret string) (*Session, error) {
	code, err := totp.GenerateCode(totpSecret, time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate totp: %w", err)
	}
	return c.GenerateSession(clientCode, password, code)
}

// TerminateSession logs the client out.
func (c *Client) TerminateSession(clientCode string) error {
	_, err := c.post("api.logout", map[string]any{"clientcode": clientCode})
	return err
}

// RenewAccessToken exchanges the refresh token for a fresh JWT.
func (c *Client) RenewAccessToken() error {
	res, err := c.post("api.token", map[string]any{
		"jwtToken":     c.accessToken,
		"refreshToken": c.refreshToken,
	})
	if err != nil {
		return err
	}
	if data, ok := res["data"].(map[string]any); ok {
		if jwt, _ := data["jwtToken"].(string); jwt != "" {
			c.accessToken = jwt
		}
		if rt, _ := data["refreshToken"].(string); rt != "" {
			c.refreshToken = rt
		}
	}
	return nil
}

// SearchScrip queries Angel's own scrip search, useful for spot-checking
// a token against the synced master.
func (c *Client) SearchScrip(exchange, query string) (map[string]any, error) {
	return c.post("api.search.scrip", map[string]any{
		"exchange": exchange, "searchscrip": query,
	})
}
