package hubspot

import (
	"context"
	"net/url"
	"strings"
)

// Contact is a CRM contact with the requested properties.
type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

func contactPath(id string) string {
	return "/crm/v3/objects/contacts/" + url.PathEscape(id)
}

func (c *Client) GetContact(ctx context.Context, id string, props ...string) (*Contact, error) {
	q := url.Values{}
	if len(props) > 0 {
		q.Set("properties", strings.Join(props, ","))
	}
	var out Contact
	if err := c.do(ctx, "GET", contactPath(id), q, nil, &out); err != nil {
		return nil, wrap("get contact "+id, err)
	}
	return &out, nil
}

// FindContactByEmail looks the contact up with email as the id property.
func (c *Client) FindContactByEmail(ctx context.Context, email string, props ...string) (*Contact, error) {
	q := url.Values{}
	q.Set("idProperty", "email")
	if len(props) > 0 {
		q.Set("properties", strings.Join(props, ","))
	}
	var out Contact
	if err := c.do(ctx, "GET", contactPath(email), q, nil, &out); err != nil {
		return nil, wrap("find contact by email", err)
	}
	return &out, nil
}

func (c *Client) UpdateContactProperties(ctx context.Context, id string, props map[string]string) error {
	in := map[string]any{"properties": props}
	if err := c.do(ctx, "PATCH", contactPath(id), nil, in, nil); err != nil {
		return wrap("update contact "+id, err)
	}
	return nil
}

// ContactPage is one page of search results; Next is empty on the last page.
type ContactPage struct {
	Contacts []Contact
	Next     string
}

type searchFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
}

type filterGroup struct {
	Filters []searchFilter `json:"filters"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties []string `json:"properties"`
	Limit      int      `json:"limit"`
	After      string   `json:"after,omitempty"`
}

type searchResponse struct {
	Results []Contact `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// SearchContactsWithProperty returns contacts where prop has any value.
func (c *Client) SearchContactsWithProperty(ctx context.Context, prop, after string, limit int) (ContactPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []searchFilter{{PropertyName: prop, Operator: "HAS_PROPERTY"}}}},
		Properties:   []string{prop, "email"},
		Limit:        limit,
		After:        after,
	}

	var resp searchResponse
	if err := c.do(ctx, "POST", "/crm/v3/objects/contacts/search", nil, req, &resp); err != nil {
		return ContactPage{}, wrap("search contacts", err)
	}
	page := ContactPage{Contacts: resp.Results}
	if resp.Paging != nil && resp.Paging.Next != nil {
		page.Next = resp.Paging.Next.After
	}
	return page, nil
}

// EachContactWithProperty walks every search page and calls fn per contact.
// Iteration stops at the first error.
func (c *Client) EachContactWithProperty(ctx context.Context, prop string, batch int, fn func([]Contact) error) error {
	after := ""
	for {
		page, err := c.SearchContactsWithProperty(ctx, prop, after, batch)
		if err != nil {
			return err
		}
		if len(page.Contacts) > 0 {
			if err := fn(page.Contacts); err != nil {
				return err
			}
		}
		if page.Next == "" {
			return nil
		}
		after = page.Next
	}
}
