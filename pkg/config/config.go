package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // embedded zone database

	"github.com/go-pkgz/lgr"
	"gopkg.in/yaml.v3"

	"github.com/umputun/lotwatch/pkg/domain"
	"github.com/umputun/lotwatch/pkg/quiet"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// source kinds
const (
	KindHTML = "html"
	KindRSS  = "rss"
)

// state backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// MaxBatchCap is the number of cards the chat platform renders in one message
const MaxBatchCap = 10

// Config holds the application configuration
type Config struct {
	Timezone      string              `yaml:"timezone" json:"timezone" jsonschema:"default=Asia/Tokyo,description=Time zone of quiet hours and flush time"`
	Sources       []Source            `yaml:"sources" json:"sources" jsonschema:"required,description=Listing pages to scrape"`
	Fetch         FetchConfig         `yaml:"fetch" json:"fetch" jsonschema:"description=HTTP fetch settings for listing and detail pages"`
	State         StateConfig         `yaml:"state" json:"state" jsonschema:"description=Persisted state settings"`
	Sellers       SellersConfig       `yaml:"sellers" json:"sellers" jsonschema:"description=Seller lists and seller cache"`
	Seen          SeenConfig          `yaml:"seen" json:"seen" jsonschema:"description=Seen-set retention"`
	Policy        PolicyConfig        `yaml:"policy" json:"policy" jsonschema:"description=Admission policy"`
	QuietHours    QuietConfig         `yaml:"quiet_hours" json:"quiet_hours" jsonschema:"description=Quiet hours deferral"`
	Notify        NotifyConfig        `yaml:"notify" json:"notify" jsonschema:"description=Webhook notifier"`
	ContentFilter ContentFilterConfig `yaml:"content_filter" json:"content_filter" jsonschema:"description=Title based content filter"`
	LLM           LLMConfig           `yaml:"llm" json:"llm" jsonschema:"description=Optional LLM content tagging"`
	Run           RunConfig           `yaml:"run" json:"run" jsonschema:"description=Run supervision"`
}

// Source describes one listing page
type Source struct {
	Category  domain.Category `yaml:"category" json:"category" jsonschema:"required,enum=listing,enum=auction,description=Category of items on this page"`
	Kind      string          `yaml:"kind" json:"kind" jsonschema:"default=html,enum=html,enum=rss,description=Page format"`
	URL       string          `yaml:"url" json:"url" jsonschema:"required,description=Listing page URL"`
	BaseURL   string          `yaml:"base_url" json:"base_url" jsonschema:"description=Base for relative item links, defaults to the listing URL origin"`
	Selectors Selectors       `yaml:"selectors" json:"selectors" jsonschema:"description=CSS selectors for html pages"`
}

// Selectors are CSS selectors used to extract items from an html listing page
type Selectors struct {
	Card   string `yaml:"card" json:"card" jsonschema:"default=.p-product,description=Item card"`
	Title  string `yaml:"title" json:"title" jsonschema:"default=.title,description=Title inside a card"`
	Price  string `yaml:"price" json:"price" jsonschema:"default=p.text-danger,description=Price inside a card"`
	BuyNow string `yaml:"buy_now" json:"buy_now" jsonschema:"default=h2,description=Buy-now price inside a card"`
	Link   string `yaml:"link" json:"link" jsonschema:"default=a,description=Item link inside a card"`
	Thumb  string `yaml:"thumb" json:"thumb" jsonschema:"default=img,description=Thumbnail inside a card"`
}

// FetchConfig holds HTTP fetch settings
type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=6s,description=Per request timeout"`
	Retries     int           `yaml:"retries" json:"retries" jsonschema:"default=3,minimum=1,description=Attempts per request"`
	RetryDelay  time.Duration `yaml:"retry_delay" json:"retry_delay" jsonschema:"default=1200ms,description=Initial backoff delay"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent" jsonschema:"description=User agent for HTTP requests"`
	ProxyURL    string        `yaml:"proxy_url" json:"proxy_url" jsonschema:"description=HTTP proxy URL"`
	DetailRate  float64       `yaml:"detail_rate" json:"detail_rate" jsonschema:"default=2,description=Detail page requests per second"`
	DetailBurst int           `yaml:"detail_burst" json:"detail_burst" jsonschema:"default=2,description=Detail page request burst"`
	Workers     int           `yaml:"workers" json:"workers" jsonschema:"default=4,minimum=1,description=Concurrent detail page fetches"`
}

// StateConfig holds persisted state settings
type StateConfig struct {
	Backend   string        `yaml:"backend" json:"backend" jsonschema:"default=json,enum=json,enum=sqlite,description=State storage backend"`
	Dir       string        `yaml:"dir" json:"dir" jsonschema:"default=data,description=Directory of json state files"`
	DSN       string        `yaml:"dsn" json:"dsn" jsonschema:"description=SQLite connection string"`
	LockFile  string        `yaml:"lock_file" json:"lock_file" jsonschema:"default=run.lock,description=Run lock file"`
	LockStale time.Duration `yaml:"lock_stale" json:"lock_stale" jsonschema:"default=10m,description=Age after which a lock is considered abandoned"`
}

// SellersConfig holds seller list files and cache settings
type SellersConfig struct {
	PriorityFile string `yaml:"priority_file" json:"priority_file" jsonschema:"default=config/special_users.txt,description=Sellers notified with top priority"`
	ExcludeFile  string `yaml:"exclude_file" json:"exclude_file" jsonschema:"default=config/exclude_users.txt,description=Sellers never notified"`
	CacheSize    int    `yaml:"cache_size" json:"cache_size" jsonschema:"default=1000,description=Seller cache size"`
}

// SeenConfig holds seen-set retention settings
type SeenConfig struct {
	Retention time.Duration `yaml:"retention" json:"retention" jsonschema:"default=720h,description=Keys older than this are pruned"`
	MaxSize   int           `yaml:"max_size" json:"max_size" jsonschema:"default=5000,description=Maximum number of keys"`
}

// PolicyConfig holds admission policy settings
type PolicyConfig struct {
	PriceCeiling int               `yaml:"price_ceiling" json:"price_ceiling" jsonschema:"default=15000,description=Items priced above are never notified"`
	Bands        domain.PriceBands `yaml:"bands" json:"bands" jsonschema:"description=Upper bounds of price tiers"`
	BatchCap     int               `yaml:"batch_cap" json:"batch_cap" jsonschema:"default=10,minimum=1,maximum=10,description=Cards per message"`
}

// QuietConfig holds quiet hours settings
type QuietConfig struct {
	Disabled bool   `yaml:"disabled" json:"disabled" jsonschema:"default=false,description=Disable quiet hours"`
	Start    string `yaml:"start" json:"start" jsonschema:"default=02:00,description=Start of quiet hours (HH:MM)"`
	End      string `yaml:"end" json:"end" jsonschema:"default=06:00,description=End of quiet hours (HH:MM)"`
	FlushAt  string `yaml:"flush_at" json:"flush_at" jsonschema:"default=06:00,description=Daily summary time (HH:MM)"`
	QueueCap int    `yaml:"queue_cap" json:"queue_cap" jsonschema:"default=10,description=Deferred items per category"`
	FlushCap int    `yaml:"flush_cap" json:"flush_cap" jsonschema:"default=10,minimum=1,maximum=10,description=Cards in the summary message"`
}

// NotifyConfig holds webhook settings
type NotifyConfig struct {
	WebhookURL   string        `yaml:"webhook_url" json:"webhook_url" jsonschema:"description=Chat webhook URL"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=5s,description=Webhook request timeout"`
	Retries      int           `yaml:"retries" json:"retries" jsonschema:"default=3,minimum=1,description=Webhook attempts"`
	Brand        string        `yaml:"brand" json:"brand" jsonschema:"default=つなぐ,description=Brand shown in headlines"`
	ShortURLSize int           `yaml:"short_url_size" json:"short_url_size" jsonschema:"default=500,description=Short URL cache size"`
}

// ContentFilterConfig holds title based content filter settings
type ContentFilterConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Exclude logo, UI and background listings"`
}

// LLMConfig holds the optional OpenAI-compatible content tagger settings
type LLMConfig struct {
	Endpoint     string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=OpenAI-compatible API endpoint, empty disables tagging"`
	APIKey       string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Model        string        `yaml:"model" json:"model" jsonschema:"description=Model name"`
	Temperature  float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0,description=Temperature for response generation"`
	MaxTokens    int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=500,description=Maximum tokens in response"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=10s,description=Request timeout"`
	SystemPrompt string        `yaml:"system_prompt" json:"system_prompt" jsonschema:"description=System prompt override"`
}

// Enabled reports whether the tagger is configured
func (l LLMConfig) Enabled() bool {
	return l.Endpoint != "" && l.Model != ""
}

// RunConfig holds run supervision settings
type RunConfig struct {
	WarnAfter time.Duration `yaml:"warn_after" json:"warn_after" jsonschema:"default=60s,description=Log a warning when a run takes longer"`
}

// Load reads configuration from a YAML file, an empty path gives the defaults
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		// expand environment variables
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.setDefaults()

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		lgr.Printf("[WARN] schema validation failed: %v", err)
	}

	return &cfg, nil
}

// DefaultDSN returns the sqlite connection string for a database in the state directory
func DefaultDSN(dir string) string {
	return "file:" + filepath.Join(dir, "lotwatch.db") + "?cache=shared&mode=rwc&_txlock=immediate"
}

// defaultSources are the listing pages scraped when the config names none
func defaultSources() []Source {
	return []Source{
		{
			Category: domain.CategoryListing,
			Kind:     KindHTML,
			URL: "https://tsunagu.cloud/exist_products?sort=&exist_product_category_id=2&exist_product_category2_id=2" +
				"&exist_product_category3_id=&keyword=&max_sales_count_exist_items=1&is_selling=true&is_ai_content=0",
		},
		{
			Category: domain.CategoryAuction,
			Kind:     KindHTML,
			URL: "https://tsunagu.cloud/auctions?sort=&exist_product_category_id=2&exist_product_category2_id=2" +
				"&exist_product_category3_id=&keyword=&is_disp_progress=1&is_ai_content=0",
		},
	}
}

func (c *Config) setDefaults() {
	if c.Timezone == "" {
		c.Timezone = "Asia/Tokyo"
	}

	// set defaults for sources
	if len(c.Sources) == 0 {
		c.Sources = defaultSources()
	}
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Kind == "" {
			src.Kind = KindHTML
		}
		if src.BaseURL == "" {
			if u, err := url.Parse(src.URL); err == nil && u.Host != "" {
				src.BaseURL = u.Scheme + "://" + u.Host
			}
		}
		sel := &src.Selectors
		if sel.Card == "" {
			sel.Card = ".p-product"
		}
		if sel.Title == "" {
			sel.Title = ".title"
		}
		if sel.Price == "" {
			sel.Price = "p.text-danger"
		}
		if sel.BuyNow == "" {
			sel.BuyNow = "h2"
		}
		if sel.Link == "" {
			sel.Link = "a"
		}
		if sel.Thumb == "" {
			sel.Thumb = "img"
		}
	}

	// set defaults for fetch
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 6 * time.Second
	}
	if c.Fetch.Retries == 0 {
		c.Fetch.Retries = 3
	}
	if c.Fetch.RetryDelay == 0 {
		c.Fetch.RetryDelay = 1200 * time.Millisecond
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	}
	if c.Fetch.ProxyURL == "" {
		c.Fetch.ProxyURL = os.Getenv("PROXY_URL")
	}
	if c.Fetch.DetailRate == 0 {
		c.Fetch.DetailRate = 2
	}
	if c.Fetch.DetailBurst == 0 {
		c.Fetch.DetailBurst = 2
	}
	if c.Fetch.Workers == 0 {
		c.Fetch.Workers = 4
	}

	// set defaults for state
	if c.State.Backend == "" {
		c.State.Backend = BackendJSON
	}
	if c.State.Dir == "" {
		c.State.Dir = "data"
	}
	if c.State.DSN == "" {
		c.State.DSN = DefaultDSN(c.State.Dir)
	}
	if c.State.LockFile == "" {
		c.State.LockFile = "run.lock"
	}
	if c.State.LockStale == 0 {
		c.State.LockStale = 10 * time.Minute
	}

	// set defaults for sellers
	if c.Sellers.PriorityFile == "" {
		c.Sellers.PriorityFile = "config/special_users.txt"
	}
	if c.Sellers.ExcludeFile == "" {
		c.Sellers.ExcludeFile = "config/exclude_users.txt"
	}
	if c.Sellers.CacheSize == 0 {
		c.Sellers.CacheSize = 1000
	}

	// set defaults for seen-set
	if c.Seen.Retention == 0 {
		c.Seen.Retention = 30 * 24 * time.Hour
	}
	if c.Seen.MaxSize == 0 {
		c.Seen.MaxSize = 5000
	}

	// set defaults for policy
	if c.Policy.PriceCeiling == 0 {
		c.Policy.PriceCeiling = 15000
	}
	if c.Policy.Bands == (domain.PriceBands{}) {
		c.Policy.Bands = domain.DefaultPriceBands
	}
	if c.Policy.BatchCap == 0 {
		c.Policy.BatchCap = MaxBatchCap
	}

	// set defaults for quiet hours
	if c.QuietHours.Start == "" {
		c.QuietHours.Start = "02:00"
	}
	if c.QuietHours.End == "" {
		c.QuietHours.End = "06:00"
	}
	if c.QuietHours.FlushAt == "" {
		c.QuietHours.FlushAt = c.QuietHours.End
	}
	if c.QuietHours.QueueCap == 0 {
		c.QuietHours.QueueCap = 10
	}
	if c.QuietHours.FlushCap == 0 {
		c.QuietHours.FlushCap = MaxBatchCap
	}

	// set defaults for notifier
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 5 * time.Second
	}
	if c.Notify.Retries == 0 {
		c.Notify.Retries = 3
	}
	if c.Notify.Brand == "" {
		c.Notify.Brand = "つなぐ"
	}
	if c.Notify.ShortURLSize == 0 {
		c.Notify.ShortURLSize = 500
	}

	// set defaults for LLM
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 500
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 10 * time.Second
	}

	if c.Run.WarnAfter == 0 {
		c.Run.WarnAfter = 60 * time.Second
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	// validate sources
	for i, src := range cfg.Sources {
		if src.Category != domain.CategoryListing && src.Category != domain.CategoryAuction {
			return fmt.Errorf("sources[%d].category must be listing or auction, got %q", i, src.Category)
		}
		if src.Kind != KindHTML && src.Kind != KindRSS {
			return fmt.Errorf("sources[%d].kind must be html or rss, got %q", i, src.Kind)
		}
		u, err := url.Parse(src.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("sources[%d].url is invalid: %q", i, src.URL)
		}
	}

	// validate fetch config
	if cfg.Fetch.Timeout < 100*time.Millisecond {
		return fmt.Errorf("fetch.timeout must be at least 100ms")
	}
	if cfg.Fetch.Retries < 1 {
		return fmt.Errorf("fetch.retries must be at least 1")
	}
	if cfg.Fetch.Workers < 1 {
		return fmt.Errorf("fetch.workers must be at least 1")
	}
	if cfg.Fetch.DetailRate < 0 {
		return fmt.Errorf("fetch.detail_rate must be non-negative")
	}

	// validate state config
	if cfg.State.Backend != BackendJSON && cfg.State.Backend != BackendSQLite {
		return fmt.Errorf("state.backend must be json or sqlite, got %q", cfg.State.Backend)
	}

	// validate policy
	if cfg.Policy.BatchCap < 1 || cfg.Policy.BatchCap > MaxBatchCap {
		return fmt.Errorf("policy.batch_cap must be between 1 and %d", MaxBatchCap)
	}
	b := cfg.Policy.Bands
	if b.Hot > b.Notable || b.Notable > b.Recommended {
		return fmt.Errorf("policy.bands must be ascending: hot <= notable <= recommended")
	}
	if cfg.Seen.MaxSize < 1 {
		return fmt.Errorf("seen.max_size must be at least 1")
	}

	// validate quiet hours
	if _, err := quiet.NewWindow(cfg.QuietHours.Start, cfg.QuietHours.End, cfg.QuietHours.FlushAt, loc); err != nil {
		return fmt.Errorf("quiet_hours: %w", err)
	}
	if cfg.QuietHours.FlushCap < 1 || cfg.QuietHours.FlushCap > MaxBatchCap {
		return fmt.Errorf("quiet_hours.flush_cap must be between 1 and %d", MaxBatchCap)
	}
	if cfg.QuietHours.QueueCap < 1 {
		return fmt.Errorf("quiet_hours.queue_cap must be at least 1")
	}

	// validate notifier
	if cfg.Notify.Retries < 1 {
		return fmt.Errorf("notify.retries must be at least 1")
	}

	// validate LLM config
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}

	return nil
}

// Location returns the time zone of quiet hours
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// QuietWindow returns the configured quiet hours window
func (c *Config) QuietWindow() (quiet.Window, error) {
	return quiet.NewWindow(c.QuietHours.Start, c.QuietHours.End, c.QuietHours.FlushAt, c.Location())
}
