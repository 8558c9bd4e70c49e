// Package calendar reads and books time on a Google Calendar connected
// through OAuth.
package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	DefaultUserID = "default"
	defaultCalID  = "primary"

	googleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"

	maxListedEvents = 50
)

// TokenStore persists the OAuth token of the connected account
type TokenStore interface {
	Get(ctx context.Context, userID string) (*domain.CalendarToken, error)
	Save(ctx context.Context, token *domain.CalendarToken) error
}

// Config holds the OAuth client and API settings
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	UserID       string

	// BaseURL and TokenURL override the Google endpoints
	BaseURL  string
	TokenURL string

	// HTTPClient is the transport under the OAuth client
	HTTPClient *http.Client
}

// Client reads and books events through the Google Calendar v3 API
type Client struct {
	oauth   oauth2.Config
	tokens  TokenStore
	userID  string
	baseURL string
	http    *http.Client
}

// NewClient creates a calendar client backed by tokens
func NewClient(cfg Config, tokens TokenStore) *Client {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	userID := cfg.UserID
	if userID == "" {
		userID = DefaultUserID
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		oauth: oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RedirectURL:  strings.TrimSpace(cfg.RedirectURL),
			Scopes:       []string{gcal.CalendarEventsScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:  googleAuthURL,
				TokenURL: tokenURL,
			},
		},
		tokens:  tokens,
		userID:  userID,
		baseURL: baseURL,
		http:    httpClient,
	}
}

// AuthURL returns the consent URL for connecting a calendar
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a token and stores it
func (c *Client) Exchange(ctx context.Context, code string) error {
	tok, err := c.oauth.Exchange(c.withTransport(ctx), code)
	if err != nil {
		return fmt.Errorf("failed to exchange calendar code: %w", err)
	}
	return c.tokens.Save(ctx, toRecord(c.userID, tok, defaultCalID))
}

// Connected reports whether a token is stored
func (c *Client) Connected(ctx context.Context) bool {
	tok, err := c.tokens.Get(ctx, c.userID)
	return err == nil && tok != nil
}

// ListBusySlots returns the events between dayStart and dayEnd in start order
func (c *Client) ListBusySlots(ctx context.Context, dayStart, dayEnd time.Time) ([]domain.BusySlot, error) {
	srv, calID, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	events, err := srv.Events.List(calID).
		TimeMin(dayStart.Format(time.RFC3339)).
		TimeMax(dayEnd.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxListedEvents).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	slots := make([]domain.BusySlot, 0, len(events.Items))
	for _, item := range events.Items {
		start, okStart := parseEventTime(item.Start, dayStart.Location())
		end, okEnd := parseEventTime(item.End, dayStart.Location())
		if !okStart || !okEnd {
			logger.Warn(ctx, "Skipping calendar event with unreadable time", zap.String("event_id", item.Id))
			continue
		}
		slots = append(slots, domain.BusySlot{Title: item.Summary, Start: start, End: end})
	}
	return slots, nil
}

// CreateMeeting books an event and returns its link
func (c *Client) CreateMeeting(ctx context.Context, ev domain.CalendarEvent) (string, error) {
	srv, calID, err := c.service(ctx)
	if err != nil {
		return "", err
	}

	body := &gcal.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &gcal.EventDateTime{DateTime: ev.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}
	for _, email := range ev.Attendees {
		if email = strings.TrimSpace(email); email != "" {
			body.Attendees = append(body.Attendees, &gcal.EventAttendee{Email: email})
		}
	}

	created, err := srv.Events.Insert(calID, body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}

	logger.Info(ctx, "Created calendar event",
		zap.String("event_id", created.Id),
		zap.String("summary", ev.Title))
	return created.HtmlLink, nil
}

func (c *Client) withTransport(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// service builds a Calendar API service authorized with the stored token.
// Refreshed tokens are written back to the store.
func (c *Client) service(ctx context.Context) (*gcal.Service, string, error) {
	record, err := c.tokens.Get(ctx, c.userID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load calendar token: %w", err)
	}
	if record == nil {
		return nil, "", domain.ErrCalendarNotConnected
	}

	calID := record.CalendarID
	if calID == "" {
		calID = defaultCalID
	}

	tctx := c.withTransport(ctx)
	source := &savingSource{
		base:    c.oauth.TokenSource(tctx, fromRecord(record)),
		store:   c.tokens,
		userID:  c.userID,
		calID:   calID,
		current: record.AccessToken,
	}
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(tctx, oauth2.ReuseTokenSource(nil, source))),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithEndpoint(c.baseURL))
	}
	srv, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create calendar service: %w", err)
	}
	return srv, calID, nil
}

func parseEventTime(t *gcal.EventDateTime, loc *time.Location) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		return parsed, err == nil
	}
	if t.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", t.Date, loc)
		return parsed, err == nil
	}
	return time.Time{}, false
}

// savingSource persists a token whenever the underlying source refreshes it
type savingSource struct {
	base    oauth2.TokenSource
	store   TokenStore
	userID  string
	calID   string
	current string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.current {
		s.current = tok.AccessToken
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.Save(ctx, toRecord(s.userID, tok, s.calID)); err != nil {
			logger.Base().Warn("Failed to persist refreshed calendar token", zap.Error(err))
		}
	}
	return tok, nil
}

func fromRecord(record *domain.CalendarToken) *oauth2.Token {
	tokenType := record.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		TokenType:    tokenType,
		Expiry:       record.ExpiresAt,
	}
}

func toRecord(userID string, tok *oauth2.Token, calID string) *domain.CalendarToken {
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}
	return &domain.CalendarToken{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    expiry.UTC(),
		CalendarID:   calID,
	}
}
