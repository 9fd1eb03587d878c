package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"speza/internal/core"
	"speza/internal/ledger"
)

// DefaultSheetName is the tab holding the ledger table.
const DefaultSheetName = "Transactions"

// Client stores the ledger in one spreadsheet tab, columns A:E, with the
// same header as the CSV file. Mutations rewrite the whole range.
type Client struct {
	api   valuesAPI
	sheet string
	mu    sync.Mutex
}

var _ ledger.Store = (*Client)(nil)

// valuesAPI is the subset of the Sheets values endpoints the client uses.
type valuesAPI interface {
	Get(ctx context.Context, rng string) ([][]any, error)
	Update(ctx context.Context, rng string, values [][]any) error
	Clear(ctx context.Context, rng string) error
}

// New wraps an initialised Sheets service.
func New(svc *gsheet.Service, spreadsheetID, sheet string) *Client {
	if strings.TrimSpace(sheet) == "" {
		sheet = DefaultSheetName
	}
	return &Client{api: &serviceValues{svc: svc, spreadsheetID: spreadsheetID}, sheet: sheet}
}

// NewFromEnv creates a client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional: GOOGLE_SHEET_NAME (default "Transactions").
// Credentials: see newSheetsService.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, err
	}
	return New(svc, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME")), nil
}

// newSheetsService initialises a Sheets service. A service account is
// preferred (GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS); otherwise an OAuth client plus a token
// obtained with `speza-cli sheets-auth` is used
// (GOOGLE_OAUTH_CLIENT_JSON|FILE and GOOGLE_OAUTH_TOKEN_JSON|FILE).
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	saJSON, err := envOrFile("GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE")
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	if saJSON == nil {
		if path := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); path != "" {
			if saJSON, err = os.ReadFile(path); err != nil {
				return nil, fmt.Errorf("read service account file: %w", err)
			}
		}
	}
	if saJSON != nil {
		slog.InfoContext(ctx, "Creating Google Sheets service with service account", "credentials_size", len(saJSON))
		svc, err := gsheet.NewService(ctx,
			goption.WithCredentialsJSON(saJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return svc, nil
	}

	clientJSON, err := envOrFile("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	tokenJSON, err := envOrFile("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if clientJSON == nil || tokenJSON == nil {
		return nil, errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, or an OAuth client and token)")
	}
	httpClient, err := oauthHTTPClient(ctx, clientJSON, tokenJSON)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Creating Google Sheets service with OAuth token")
	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// OAuthConfig parses an OAuth client definition for the Sheets scope.
func OAuthConfig(clientJSON []byte) (*oauth2.Config, error) {
	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

func oauthHTTPClient(ctx context.Context, clientJSON, tokenJSON []byte) (*http.Client, error) {
	cfg, err := OAuthConfig(clientJSON)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	// Token refreshes go through the pooled client too.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	return cfg.Client(ctx, &tok), nil
}

// envOrFile returns the inline value of jsonVar, else the content of the
// file named by fileVar, else nil.
func envOrFile(jsonVar, fileVar string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(jsonVar)); v != "" {
		return []byte(v), nil
	}
	if path := strings.TrimSpace(os.Getenv(fileVar)); path != "" {
		return os.ReadFile(path)
	}
	return nil, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API
// with connection pooling and keep-alive.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

func (c *Client) tableRange() string {
	return fmt.Sprintf("%s!A:E", c.sheet)
}

func (c *Client) Load(ctx context.Context) ([]core.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(ctx)
}

func (c *Client) Append(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	txs, err := c.read(ctx)
	if err != nil {
		return err
	}
	t.ID = ""
	txs = append(txs, t)
	if err := c.write(ctx, txs); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction appended to sheet", "sheet", c.sheet, "row", len(txs)+1)
	return nil
}

func (c *Client) DeleteAt(ctx context.Context, index int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	txs, err := c.read(ctx)
	if err != nil {
		return false, err
	}
	if !ledger.InRange(index, len(txs)) {
		return false, nil
	}
	txs = append(txs[:index], txs[index+1:]...)
	if err := c.write(ctx, txs); err != nil {
		return false, err
	}
	slog.InfoContext(ctx, "Transaction deleted from sheet", "sheet", c.sheet, "index", index)
	return true, nil
}

func (c *Client) EditAt(ctx context.Context, index int, t core.Transaction) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	txs, err := c.read(ctx)
	if err != nil {
		return false, err
	}
	if !ledger.InRange(index, len(txs)) {
		return false, nil
	}
	t.ID = ""
	txs[index] = t
	if err := c.write(ctx, txs); err != nil {
		return false, err
	}
	slog.InfoContext(ctx, "Transaction edited in sheet", "sheet", c.sheet, "index", index)
	return true, nil
}

func (c *Client) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(ctx, nil)
}

// read must be called with mu held.
func (c *Client) read(ctx context.Context) ([]core.Transaction, error) {
	values, err := c.api.Get(ctx, c.tableRange())
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", c.sheet, err)
	}
	return ledger.FromRecords(toRows(values)), nil
}

// write must be called with mu held.
func (c *Client) write(ctx context.Context, txs []core.Transaction) error {
	if err := c.api.Clear(ctx, c.tableRange()); err != nil {
		return fmt.Errorf("clear sheet %s: %w", c.sheet, err)
	}
	values := toValues(txs)
	rng := fmt.Sprintf("%s!A1:E%d", c.sheet, len(values))
	if err := c.api.Update(ctx, rng, values); err != nil {
		return fmt.Errorf("update sheet %s: %w", c.sheet, err)
	}
	return nil
}

// serviceValues adapts the generated Sheets client to valuesAPI.
type serviceValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (s *serviceValues) Get(ctx context.Context, rng string) ([][]any, error) {
	if s.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *serviceValues) Update(ctx context.Context, rng string, values [][]any) error {
	if s.svc == nil {
		return errors.New("sheets service not initialized")
	}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *serviceValues) Clear(ctx context.Context, rng string) error {
	if s.svc == nil {
		return errors.New("sheets service not initialized")
	}
	_, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	return err
}
