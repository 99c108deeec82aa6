package monday

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	apiURL    = "https://api.monday.com/v2"
	userAgent = "spigell/outreach-matcher"
	// Max value for items_page per request.
	pageLimit = 100

	DefaultBoardID = "1999034079"
	DefaultGroupID = "topics"
)

// Columns maps study fields to board column ids.
type Columns struct {
	Title       string `mapstructure:"title"`
	Summary     string `mapstructure:"summary"`
	Eligibility string `mapstructure:"eligibility"`
	Link        string `mapstructure:"link"`
	Contact     string `mapstructure:"contact"`
	Email       string `mapstructure:"email"`
	Date        string `mapstructure:"date"`
}

// DefaultColumns returns the column ids of the outreach board.
func DefaultColumns() Columns {
	return Columns{
		Title:       "text_mkrtxgyc",
		Summary:     "long_text_mkrtn4eb",
		Eligibility: "long_text_mkrtc9jf",
		Link:        "link_mkrtn4m6",
		Contact:     "text_mkrtjwn9",
		Email:       "email_mkrt39hj",
		Date:        "date4",
	}
}

type Config struct {
	APIURL  string
	BoardID string
	GroupID string
	Columns Columns
}

// Client talks to the monday.com GraphQL API.
type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
	boardID    string
	groupID    string
	columns    Columns
	now        func() time.Time

	recordMu sync.Mutex
}

func New(cfg *Config, token string, logger *zap.Logger) *Client {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if strings.TrimSpace(c.APIURL) == "" {
		c.APIURL = apiURL
	}
	if strings.TrimSpace(c.BoardID) == "" {
		c.BoardID = DefaultBoardID
	}
	if strings.TrimSpace(c.GroupID) == "" {
		c.GroupID = DefaultGroupID
	}
	c.Columns = withDefaults(c.Columns)
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		token:  token,
		APIURL: c.APIURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger,
		UserAgent: userAgent,
		boardID:   c.BoardID,
		groupID:   c.GroupID,
		columns:   c.Columns,
		now:       time.Now,
	}
}

func withDefaults(c Columns) Columns {
	d := DefaultColumns()
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}

	return Columns{
		Title:       pick(c.Title, d.Title),
		Summary:     pick(c.Summary, d.Summary),
		Eligibility: pick(c.Eligibility, d.Eligibility),
		Link:        pick(c.Link, d.Link),
		Contact:     pick(c.Contact, d.Contact),
		Email:       pick(c.Email, d.Email),
		Date:        pick(c.Date, d.Date),
	}
}
