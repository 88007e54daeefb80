// Package sheets is a thin client over the Google Sheets v4 REST API, used as
// a per-owner prediction cache. Every call takes an explicit session; a nil or
// token-less session makes reads return nothing and writes no-ops.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/kiranshivaraju/futurework/internal/config"
	"github.com/kiranshivaraju/futurework/internal/session"
	"github.com/kiranshivaraju/futurework/internal/state"
)

// Sentinel errors for spreadsheet failures.
var (
	ErrStoreUnavailable = errors.New("spreadsheet unavailable")
	ErrStoreNotFound    = errors.New("spreadsheet not found or access denied")
)

// Client is the interface for the spreadsheet cache.
type Client interface {
	EnsureStore(ctx context.Context, sess *session.Session) (string, error)
	AppendRows(ctx context.Context, sess *session.Session, rows []Row) error
	OverwriteRow(ctx context.Context, sess *session.Session, rowIndex int, row Row) error
	FetchAllRows(ctx context.Context, sess *session.Session) ([][]string, error)
}

// HTTPClient implements Client using the Sheets REST API.
type HTTPClient struct {
	baseURL   string
	title     string
	sheetName string
	state     state.Store
	client    *http.Client
}

// NewHTTPClient creates a new Sheets HTTP client. The spreadsheet handle of
// each owner is persisted in st.
func NewHTTPClient(cfg config.SheetsConfig, st state.Store) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		title:     cfg.Title,
		sheetName: cfg.SheetName,
		state:     st,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

// EnsureStore returns the owner's spreadsheet id, creating the spreadsheet
// with its header row on first use. Returns "" when disconnected.
func (c *HTTPClient) EnsureStore(ctx context.Context, sess *session.Session) (string, error) {
	if !sess.Connected() {
		return "", nil
	}
	id, found, err := c.state.Get(ctx, sess.Owner, state.KeySpreadsheetID)
	if err != nil {
		return "", err
	}
	if found && id != "" {
		return id, nil
	}

	body := createRequest{
		Properties: spreadsheetProperties{Title: c.title},
		Sheets: []sheet{{Properties: sheetProperties{
			Title:          c.sheetName,
			GridProperties: gridProperties{FrozenRowCount: 1},
		}}},
	}
	var created createResponse
	if err := c.do(ctx, sess, http.MethodPost, c.baseURL+"/spreadsheets", body, &created); err != nil {
		return "", fmt.Errorf("creating spreadsheet: %w", err)
	}
	if created.SpreadsheetID == "" {
		return "", fmt.Errorf("%w: create returned no spreadsheet id", ErrStoreUnavailable)
	}

	if err := c.appendValues(ctx, sess, created.SpreadsheetID, [][]string{Header}); err != nil {
		slog.Warn("writing spreadsheet header failed",
			"owner", sess.Owner,
			"spreadsheet_id", created.SpreadsheetID,
			"error", err,
		)
	}

	if err := c.state.Set(ctx, sess.Owner, state.KeySpreadsheetID, created.SpreadsheetID); err != nil {
		return "", err
	}
	slog.Info("spreadsheet created", "owner", sess.Owner, "spreadsheet_id", created.SpreadsheetID)
	return created.SpreadsheetID, nil
}

// AppendRows adds rows after the last non-empty row, creating the
// spreadsheet if needed.
func (c *HTTPClient) AppendRows(ctx context.Context, sess *session.Session, rows []Row) error {
	if !sess.Connected() || len(rows) == 0 {
		return nil
	}
	id, err := c.EnsureStore(ctx, sess)
	if err != nil {
		return err
	}
	values := make([][]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, r.Values())
	}
	return c.appendValues(ctx, sess, id, values)
}

// OverwriteRow replaces columns A through K of the 1-based rowIndex. It does
// nothing when no spreadsheet is persisted for the owner.
func (c *HTTPClient) OverwriteRow(ctx context.Context, sess *session.Session, rowIndex int, row Row) error {
	if !sess.Connected() {
		return nil
	}
	id, found, err := c.state.Get(ctx, sess.Owner, state.KeySpreadsheetID)
	if err != nil || !found || id == "" {
		return err
	}

	rng := c.a1(fmt.Sprintf("A%d:K%d", rowIndex, rowIndex))
	body := valueRange{Range: rng, MajorDimension: "ROWS", Values: [][]string{row.Values()}}
	u := c.valuesURL(id, rng, "") + "?valueInputOption=USER_ENTERED"
	if err := c.do(ctx, sess, http.MethodPut, u, body, nil); err != nil {
		return fmt.Errorf("overwriting row %d: %w", rowIndex, err)
	}
	return nil
}

// FetchAllRows returns every row including the header. It returns nil when
// disconnected or when no spreadsheet is persisted. A spreadsheet that is
// gone or no longer shared has its handle forgotten and reports ErrStoreNotFound.
func (c *HTTPClient) FetchAllRows(ctx context.Context, sess *session.Session) ([][]string, error) {
	if !sess.Connected() {
		return nil, nil
	}
	id, found, err := c.state.Get(ctx, sess.Owner, state.KeySpreadsheetID)
	if err != nil || !found || id == "" {
		return nil, err
	}

	var vr valueRange
	err = c.do(ctx, sess, http.MethodGet, c.valuesURL(id, c.a1("A:K"), ""), nil, &vr)
	if errors.Is(err, ErrStoreNotFound) {
		if derr := c.state.Delete(ctx, sess.Owner, state.KeySpreadsheetID); derr != nil {
			slog.Error("forgetting spreadsheet handle failed", "owner", sess.Owner, "error", derr)
		}
		return nil, fmt.Errorf("reading spreadsheet %s: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("reading spreadsheet %s: %w", id, err)
	}
	if vr.Values == nil {
		return [][]string{}, nil
	}
	return vr.Values, nil
}

func (c *HTTPClient) appendValues(ctx context.Context, sess *session.Session, id string, values [][]string) error {
	u := c.valuesURL(id, c.a1("A1"), ":append") + "?valueInputOption=USER_ENTERED"
	return c.do(ctx, sess, http.MethodPost, u, valueRange{Values: values}, nil)
}

func (c *HTTPClient) valuesURL(id, rng, verb string) string {
	return fmt.Sprintf("%s/spreadsheets/%s/values/%s%s", c.baseURL, url.PathEscape(id), url.PathEscape(rng), verb)
}

// a1 qualifies ref with the sheet name, quoting names that need it.
func (c *HTTPClient) a1(ref string) string {
	name := c.sheetName
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			name = "'" + strings.ReplaceAll(name, "'", "''") + "'"
			break
		}
	}
	return name + "!" + ref
}

func (c *HTTPClient) do(ctx context.Context, sess *session.Session, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrStoreNotFound, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: status %d", ErrStoreUnavailable, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: timed out: %v", ErrStoreUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timed out: %v", ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// --- Sheets request/response types ---

type createRequest struct {
	Properties spreadsheetProperties `json:"properties"`
	Sheets     []sheet               `json:"sheets"`
}

type spreadsheetProperties struct {
	Title string `json:"title"`
}

type sheet struct {
	Properties sheetProperties `json:"properties"`
}

type sheetProperties struct {
	Title          string         `json:"title"`
	GridProperties gridProperties `json:"gridProperties"`
}

type gridProperties struct {
	FrozenRowCount int `json:"frozenRowCount"`
}

type createResponse struct {
	SpreadsheetID  string `json:"spreadsheetId"`
	SpreadsheetURL string `json:"spreadsheetUrl"`
}

type valueRange struct {
	Range          string     `json:"range,omitempty"`
	MajorDimension string     `json:"majorDimension,omitempty"`
	Values         [][]string `json:"values"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
