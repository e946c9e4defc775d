package gateway

import (
	"context"
	"net/url"
	"time"

	resourcedomain "scratcha-console/client/internal/resource/domain"
)

// apiKeyRecord is the wire shape of an API key.
type apiKeyRecord struct {
	ID       string    `json:"id"`
	AppID    string    `json:"appId"`
	Name     string    `json:"name"`
	Key      string    `json:"key"`
	Status   string    `json:"status"`
	LastUsed time.Time `json:"lastUsed,omitzero"`
}

// applicationRecord is the wire shape of an application; it may embed one key.
type applicationRecord struct {
	ID          string                  `json:"id"`
	AppName     string                  `json:"appName"`
	Description string                  `json:"description"`
	Status      string                  `json:"status"`
	CreatedAt   time.Time               `json:"createdAt,omitzero"`
	Settings    resourcedomain.Settings `json:"settings"`
	Usage       resourcedomain.Usage    `json:"usage"`
	Key         *apiKeyRecord           `json:"key,omitempty"`
}

func (r *applicationRecord) toDomain() resourcedomain.App {
	return resourcedomain.App{
		ID:          r.ID,
		Name:        r.AppName,
		Description: r.Description,
		Status:      resourcedomain.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		Settings:    r.Settings,
		Usage:       r.Usage,
	}
}

func (r *apiKeyRecord) toDomain() resourcedomain.APIKey {
	return resourcedomain.APIKey{
		ID:       r.ID,
		AppID:    r.AppID,
		Name:     r.Name,
		Key:      r.Key,
		Status:   resourcedomain.Status(r.Status),
		LastUsed: r.LastUsed,
	}
}

// Applications fetches the full application list, splitting out the keys each
// record embeds. The raw list is returned as-is; deduplication is the
// resource store's concern.
func (c *Client) Applications(ctx context.Context) ([]resourcedomain.App, []resourcedomain.APIKey, error) {
	var records []applicationRecord
	if err := c.getJSON(ctx, "/api/dashboard/applications/", &records); err != nil {
		return nil, nil, err
	}
	apps := make([]resourcedomain.App, 0, len(records))
	keys := make([]resourcedomain.APIKey, 0, len(records))
	for i := range records {
		apps = append(apps, records[i].toDomain())
		if k := records[i].Key; k != nil {
			key := k.toDomain()
			if key.AppID == "" {
				key.AppID = records[i].ID
			}
			keys = append(keys, key)
		}
	}
	return apps, keys, nil
}

// CreateApplication registers a new application. expiresPolicy is a day
// count, 0 meaning no expiry.
func (c *Client) CreateApplication(ctx context.Context, name, description string, expiresPolicy int) error {
	in := map[string]any{
		"appName":       name,
		"description":   description,
		"expiresPolicy": expiresPolicy,
	}
	return c.postJSON(ctx, "/api/dashboard/applications/", nil, in, nil)
}

// DeleteApplication deletes an application. The backend answers 422 when
// dependent API keys still exist; that surfaces as a KindConflict error.
func (c *Client) DeleteApplication(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/dashboard/applications/"+url.PathEscape(id))
}

// CreateAPIKey creates a key scoped to the given application.
func (c *Client) CreateAPIKey(ctx context.Context, appID, name string) error {
	q := url.Values{}
	q.Set("appId", appID)
	return c.postJSON(ctx, "/api/dashboard/api-keys", q, map[string]string{"name": name}, nil)
}

// DeleteAPIKey deletes a key.
func (c *Client) DeleteAPIKey(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/dashboard/api-keys/"+url.PathEscape(id))
}

// ActivateAPIKey transitions a key to active via its dedicated endpoint.
func (c *Client) ActivateAPIKey(ctx context.Context, id string) error {
	return c.put(ctx, "/api/dashboard/api-keys/"+url.PathEscape(id)+"/activate")
}

// DeactivateAPIKey transitions a key to inactive via its dedicated endpoint.
func (c *Client) DeactivateAPIKey(ctx context.Context, id string) error {
	return c.put(ctx, "/api/dashboard/api-keys/"+url.PathEscape(id)+"/deactivate")
}
