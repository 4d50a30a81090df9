package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sambetts/office-nudge-sub000/internal/model"
	"go.uber.org/zap"
)

// graphSelectFields is the field-selection list sent on every delta request.
var graphSelectFields = []string{
	"id", "userPrincipalName", "displayName", "givenName", "surname", "mail",
	"department", "jobTitle", "officeLocation", "companyName", "accountEnabled",
}

// GraphLoader implements DirectoryLoader against a Microsoft-Graph-style
// users delta endpoint. A full load is a delta query without a token; both
// shapes page via @odata.nextLink and finish with an @odata.deltaLink, whose
// URL is the continuation token handed back to the orchestrator.
//
// Credential acquisition is the caller's concern: the injected http.Client is
// expected to carry an authenticating transport.
type GraphLoader struct {
	baseURL        string
	pageSize       int
	allowedDomains []string
	httpClient     *http.Client
	logger         *zap.Logger
}

// NewGraphLoader creates a new Graph directory loader
func NewGraphLoader(baseURL string, pageSize int, allowedDomains []string, timeout time.Duration, httpClient *http.Client, logger *zap.Logger) *GraphLoader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &GraphLoader{
		baseURL:        strings.TrimRight(baseURL, "/"),
		pageSize:       pageSize,
		allowedDomains: allowedDomains,
		httpClient:     httpClient,
		logger:         logger,
	}
}

// LoadAll fetches the entire current population
func (l *GraphLoader) LoadAll(ctx context.Context) (*LoadResult, error) {
	query := url.Values{}
	query.Set("$select", strings.Join(graphSelectFields, ","))
	query.Set("$top", fmt.Sprintf("%d", l.pageSize))
	start := l.baseURL + "/users/delta?" + query.Encode()

	l.logger.Info("Starting full directory load")
	return l.loadPages(ctx, start)
}

// LoadDelta fetches only records changed since token. The token is the delta
// link URL issued at the end of the previous load.
func (l *GraphLoader) LoadDelta(ctx context.Context, token string) (*LoadResult, error) {
	if token == "" {
		return nil, fmt.Errorf("delta load requires a continuation token")
	}

	l.logger.Info("Starting delta directory load")
	return l.loadPages(ctx, token)
}

type graphRemoved struct {
	Reason string `json:"reason"`
}

type graphUser struct {
	ID                string        `json:"id"`
	UserPrincipalName string        `json:"userPrincipalName"`
	DisplayName       string        `json:"displayName"`
	GivenName         string        `json:"givenName"`
	Surname           string        `json:"surname"`
	Mail              string        `json:"mail"`
	Department        string        `json:"department"`
	JobTitle          string        `json:"jobTitle"`
	OfficeLocation    string        `json:"officeLocation"`
	CompanyName       string        `json:"companyName"`
	AccountEnabled    *bool         `json:"accountEnabled"`
	Removed           *graphRemoved `json:"@removed"`
}

type deltaPage struct {
	NextLink  string      `json:"@odata.nextLink"`
	DeltaLink string      `json:"@odata.deltaLink"`
	Value     []graphUser `json:"value"`
}

// loadPages walks the page chain from startURL until a delta link appears,
// aggregating everything into one LoadResult.
func (l *GraphLoader) loadPages(ctx context.Context, startURL string) (*LoadResult, error) {
	result := &LoadResult{Users: make([]*model.CachedUser, 0)}
	next := startURL
	pages := 0

	for next != "" {
		page, err := l.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		pages++

		for i := range page.Value {
			user, keep := l.convert(&page.Value[i])
			if keep {
				result.Users = append(result.Users, user)
			}
		}

		if page.DeltaLink != "" {
			result.DeltaToken = page.DeltaLink
			break
		}
		next = page.NextLink
	}

	if result.DeltaToken == "" {
		return nil, fmt.Errorf("directory response ended without a delta link after %d pages", pages)
	}

	l.logger.Info("Directory load complete",
		zap.Int("pages", pages),
		zap.Int("records", len(result.Users)))

	return result, nil
}

func (l *GraphLoader) fetchPage(ctx context.Context, pageURL string) (*deltaPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		// The service rejects tokens past its retention window with 410.
		return nil, ErrDeltaTokenExpired
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("directory request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page deltaPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}
	return &page, nil
}

// convert maps a wire record onto the cache model and applies client-side
// filtering. The delta endpoint does not honor $filter, so disabled accounts
// and out-of-domain principals are dropped here. Tombstones always pass:
// a removal must reach the mirror even for accounts the filter would skip.
func (l *GraphLoader) convert(gu *graphUser) (*model.CachedUser, bool) {
	if gu.Removed != nil {
		return &model.CachedUser{
			GraphID:           gu.ID,
			UserPrincipalName: gu.UserPrincipalName,
			IsDeleted:         true,
		}, true
	}

	if gu.AccountEnabled != nil && !*gu.AccountEnabled {
		return nil, false
	}
	if !l.domainAllowed(gu.UserPrincipalName) {
		return nil, false
	}

	enabled := gu.AccountEnabled == nil || *gu.AccountEnabled
	return &model.CachedUser{
		GraphID:           gu.ID,
		UserPrincipalName: gu.UserPrincipalName,
		DisplayName:       gu.DisplayName,
		GivenName:         gu.GivenName,
		Surname:           gu.Surname,
		Mail:              gu.Mail,
		Department:        gu.Department,
		JobTitle:          gu.JobTitle,
		OfficeLocation:    gu.OfficeLocation,
		CompanyName:       gu.CompanyName,
		AccountEnabled:    enabled,
	}, true
}

func (l *GraphLoader) domainAllowed(principal string) bool {
	if len(l.allowedDomains) == 0 {
		return true
	}
	at := strings.LastIndex(principal, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(principal[at+1:])
	for _, allowed := range l.allowedDomains {
		if domain == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
