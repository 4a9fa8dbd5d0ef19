package hubspot

import (
	"context"
	"net/url"
	"strconv"
)

// Row is a HubDB table row. Path and Name back the dynamic page slug and title.
type Row struct {
	ID           string         `json:"id,omitempty"`
	Path         string         `json:"path,omitempty"`
	Name         string         `json:"name,omitempty"`
	ChildTableID int            `json:"childTableId"`
	Values       map[string]any `json:"values"`
}

// StringValue returns a value column as a string, or "".
func (r Row) StringValue(col string) string {
	if v, ok := r.Values[col].(string); ok {
		return v
	}
	return ""
}

type rowsPage struct {
	Total   int   `json:"total"`
	Results []Row `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

const rowsPageLimit = 1000

func rowsPath(tableID string) string {
	return "/cms/v3/hubdb/tables/" + url.PathEscape(tableID) + "/rows"
}

// ListRows returns every draft row of the table, following paging cursors.
func (c *Client) ListRows(ctx context.Context, tableID string) ([]Row, error) {
	var (
		out   []Row
		after string
	)
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(rowsPageLimit))
		if after != "" {
			q.Set("after", after)
		}

		var page rowsPage
		if err := c.do(ctx, "GET", rowsPath(tableID)+"/draft", q, nil, &page); err != nil {
			return nil, wrap("list rows", err)
		}
		out = append(out, page.Results...)

		if page.Paging == nil || page.Paging.Next == nil || page.Paging.Next.After == "" {
			return out, nil
		}
		after = page.Paging.Next.After
	}
}

// CreateRow adds a draft row and returns it with its id.
func (c *Client) CreateRow(ctx context.Context, tableID string, row Row) (Row, error) {
	row.ID = ""
	var created Row
	if err := c.do(ctx, "POST", rowsPath(tableID), nil, row, &created); err != nil {
		return Row{}, wrap("create row", err)
	}
	return created, nil
}

// UpdateDraftRow replaces the draft values of an existing row.
func (c *Client) UpdateDraftRow(ctx context.Context, tableID, rowID string, row Row) (Row, error) {
	row.ID = ""
	var updated Row
	if err := c.do(ctx, "PATCH", rowsPath(tableID)+"/"+url.PathEscape(rowID)+"/draft", nil, row, &updated); err != nil {
		return Row{}, wrap("update row "+rowID, err)
	}
	return updated, nil
}

// PurgeDraftRow removes a row from the draft table. It disappears from the
// live table on the next publish.
func (c *Client) PurgeDraftRow(ctx context.Context, tableID, rowID string) error {
	if err := c.do(ctx, "DELETE", rowsPath(tableID)+"/"+url.PathEscape(rowID)+"/draft", nil, nil, nil); err != nil {
		return wrap("purge row "+rowID, err)
	}
	return nil
}

// PublishTable pushes the draft table live.
func (c *Client) PublishTable(ctx context.Context, tableID string) error {
	p := "/cms/v3/hubdb/tables/" + url.PathEscape(tableID) + "/draft/publish"
	if err := c.do(ctx, "POST", p, nil, nil, nil); err != nil {
		return wrap("publish table", err)
	}
	return nil
}
