package monday

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spigell/outreach-matcher/internal/dedup"
	"github.com/spigell/outreach-matcher/internal/matching"
	"github.com/spigell/outreach-matcher/internal/outreach"
	"go.uber.org/zap"
)

const itemFields = `cursor items { id name column_values(ids: $columns) { id text value } }`

const firstPageQuery = `query ($board: [ID!], $limit: Int!, $columns: [String!]) {
  boards(ids: $board) { items_page(limit: $limit) { ` + itemFields + ` } }
}`

const nextPageQuery = `query ($cursor: String!, $limit: Int!, $columns: [String!]) {
  next_items_page(cursor: $cursor, limit: $limit) { ` + itemFields + ` }
}`

const createItemMutation = `mutation ($board_id: ID!, $group_id: String!, $item_name: String!, $column_values: JSON!) {
  create_item(board_id: $board_id, group_id: $group_id, item_name: $item_name, column_values: $column_values) { id }
}`

type ColumnValue struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Value string `json:"value"`
}

type Item struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ColumnValues []ColumnValue `json:"column_values"`
}

type ItemsPage struct {
	Cursor string `json:"cursor"`
	Items  []Item `json:"items"`
}

// Existing is what the board already knows about contacted studies.
type Existing struct {
	IDs    dedup.IDSet
	Emails map[string]struct{}
}

func (e *Existing) HasEmail(email string) bool {
	_, ok := e.Emails[normalizeEmail(email)]
	return ok
}

// GetItems returns the items of the board from all pages.
func (c *Client) GetItems(ctx context.Context) ([]Item, error) {
	columns := []string{c.columns.Link, c.columns.Email}

	var first struct {
		Boards []struct {
			ItemsPage ItemsPage `json:"items_page"`
		} `json:"boards"`
	}
	err := c.query(ctx, firstPageQuery, map[string]any{
		"board":   []string{c.boardID},
		"limit":   pageLimit,
		"columns": columns,
	}, &first)
	if err != nil {
		return nil, fmt.Errorf("fetching board items: %w", err)
	}
	if len(first.Boards) == 0 {
		return nil, fmt.Errorf("board %s not found", c.boardID)
	}

	page := first.Boards[0].ItemsPage
	items := append([]Item(nil), page.Items...)

	for page.Cursor != "" {
		c.logger.Debug("additional request needed", zap.Int("items_so_far", len(items)))

		var next struct {
			NextItemsPage ItemsPage `json:"next_items_page"`
		}
		err := c.query(ctx, nextPageQuery, map[string]any{
			"cursor":  page.Cursor,
			"limit":   pageLimit,
			"columns": columns,
		}, &next)
		if err != nil {
			return nil, fmt.Errorf("fetching next board page: %w", err)
		}

		page = next.NextItemsPage
		items = append(items, page.Items...)
	}

	c.logger.Debug("got board items from monday.com", zap.Int("items", len(items)))

	return items, nil
}

// Existing collects the trial ids and contact emails already present on the board.
func (c *Client) Existing(ctx context.Context) (*Existing, error) {
	items, err := c.GetItems(ctx)
	if err != nil {
		return nil, err
	}

	existing := &Existing{IDs: dedup.NewIDSet(), Emails: make(map[string]struct{})}
	for _, item := range items {
		for _, id := range dedup.ExtractIDs(item.Name) {
			existing.IDs.Add(id)
		}
		for _, col := range item.ColumnValues {
			switch col.ID {
			case c.columns.Link:
				for _, id := range dedup.ExtractIDs(col.Text + " " + col.Value) {
					existing.IDs.Add(id)
				}
			case c.columns.Email:
				if email := emailFromColumn(col); email != "" {
					existing.Emails[email] = struct{}{}
				}
			}
		}
	}

	return existing, nil
}

// ContactedTrialIDs returns the ids of studies already on the board.
func (c *Client) ContactedTrialIDs(ctx context.Context) (dedup.IDSet, error) {
	existing, err := c.Existing(ctx)
	if err != nil {
		return nil, err
	}
	return existing.IDs, nil
}

// Record creates a board item for the matched study unless it is already there.
// Calls are serialised so one page cannot create the same contact twice.
func (c *Client) Record(ctx context.Context, result *matching.Result, campaignName string) (outreach.Outcome, error) {
	email := normalizeEmail(result.Study.ContactEmail)
	if email == "" {
		c.logger.Debug("skipping crm record without contact email", zap.String("nct_id", result.TrialID()))
		return outreach.OutcomeSkipped, nil
	}

	c.recordMu.Lock()
	defer c.recordMu.Unlock()

	existing, err := c.Existing(ctx)
	if err != nil {
		return "", err
	}

	return c.record(ctx, result, email, campaignName, existing)
}

// ForPage loads the board once and returns a recorder that checks duplicates against
// that snapshot, adding every item it creates.
func (c *Client) ForPage(ctx context.Context) (outreach.Recorder, error) {
	existing, err := c.Existing(ctx)
	if err != nil {
		return nil, err
	}
	return &pageRecorder{client: c, existing: existing}, nil
}

var _ outreach.PageRecorder = (*Client)(nil)

type pageRecorder struct {
	client   *Client
	existing *Existing
}

func (p *pageRecorder) Record(ctx context.Context, result *matching.Result, campaignName string) (outreach.Outcome, error) {
	c := p.client
	email := normalizeEmail(result.Study.ContactEmail)
	if email == "" {
		c.logger.Debug("skipping crm record without contact email", zap.String("nct_id", result.TrialID()))
		return outreach.OutcomeSkipped, nil
	}

	c.recordMu.Lock()
	defer c.recordMu.Unlock()

	return c.record(ctx, result, email, campaignName, p.existing)
}

// record creates the item unless existing already holds the trial or the email.
// The caller holds recordMu.
func (c *Client) record(ctx context.Context, result *matching.Result, email, campaignName string, existing *Existing) (outreach.Outcome, error) {
	study := result.Study
	if existing.IDs.Has(result.TrialID()) || existing.HasEmail(email) {
		c.logger.Debug("study already on the board",
			zap.String("nct_id", result.TrialID()),
			zap.String("email", email),
		)
		return outreach.OutcomeDuplicate, nil
	}

	values, err := json.Marshal(c.columnValues(result, email))
	if err != nil {
		return "", fmt.Errorf("encoding column values: %w", err)
	}

	name := strings.TrimSpace(campaignName)
	if name == "" {
		name = study.DisplayTitle()
	}

	var created struct {
		CreateItem struct {
			ID string `json:"id"`
		} `json:"create_item"`
	}
	err = c.query(ctx, createItemMutation, map[string]any{
		"board_id":      c.boardID,
		"group_id":      c.groupID,
		"item_name":     name,
		"column_values": string(values),
	}, &created)
	if err != nil {
		return "", fmt.Errorf("creating board item: %w", err)
	}

	existing.IDs.Add(result.TrialID())
	existing.Emails[email] = struct{}{}

	c.logger.Info("study recorded in crm",
		zap.String("nct_id", result.TrialID()),
		zap.String("item_id", created.CreateItem.ID),
	)

	return outreach.OutcomeCreated, nil
}

func (c *Client) columnValues(result *matching.Result, email string) map[string]any {
	study := result.Study
	link := study.URL()
	contact := strings.TrimSpace(study.ContactName)
	if contact == "" {
		contact = "N/A"
	}

	return map[string]any{
		c.columns.Title:       study.DisplayTitle(),
		c.columns.Summary:     map[string]string{"text": study.Summary},
		c.columns.Eligibility: map[string]string{"text": study.Eligibility},
		c.columns.Link:        map[string]string{"url": link, "text": link},
		c.columns.Contact:     contact,
		c.columns.Email:       map[string]string{"email": email, "text": email},
		c.columns.Date:        map[string]string{"date": c.now().Format("2006-01-02")},
	}
}

// emailFromColumn reads an email column, which is either JSON or a bare address.
func emailFromColumn(col ColumnValue) string {
	if v := strings.TrimSpace(col.Value); v != "" {
		var parsed struct {
			Email string `json:"email"`
		}
		if err := json.Unmarshal([]byte(v), &parsed); err == nil && parsed.Email != "" {
			return normalizeEmail(parsed.Email)
		}
		if strings.Contains(v, "@") {
			return normalizeEmail(strings.Trim(v, `"`))
		}
	}
	if strings.Contains(col.Text, "@") {
		return normalizeEmail(col.Text)
	}
	return ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
