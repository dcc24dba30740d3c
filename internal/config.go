// Package internal holds the application configuration for Ansuz.
package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/anonymize"
)

// Date orderings recognized by the chat parser. WhatsApp localizes the
// leading date stamp, so the operator must say which ordering applies.
const (
	DateOrderDayFirst   = "dd/mm/yy"
	DateOrderMonthFirst = "mm/dd/yy"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Drive      DriveConfig       `yaml:"drive"`
	Layout     LayoutConfig      `yaml:"layout"`
	Parser     ParserConfig      `yaml:"parser"`
	Anonymizer AnonymizerConfig  `yaml:"anonymizer"`
	Strapi     StrapiConfig      `yaml:"strapi"`
	Catalog    CatalogConfig     `yaml:"catalog"`
	Media      MediaConfig       `yaml:"media"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Drive.Validate(); err != nil {
		return err
	}
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if err := c.Parser.Validate(); err != nil {
		return err
	}
	if err := c.Anonymizer.Validate(); err != nil {
		return err
	}
	if err := c.Strapi.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Validate(); err != nil {
		return err
	}
	return c.Media.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// DriveConfig holds the Google Drive source configuration.
type DriveConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	// ArchiveKeyword is matched by substring against remote file names;
	// only matching .zip/.txt files are downloaded.
	ArchiveKeyword string `yaml:"archive_keyword"`
	PageSize       int64  `yaml:"page_size"`
}

// Validate validates the drive configuration.
func (c *DriveConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CredentialsFile, validation.Required),
		validation.Field(&c.PageSize, validation.Min(int64(1)), validation.Max(int64(1000))),
	)
}

// LayoutConfig holds the local directory layout:
// downloaded/<archive>, extracted/<conversation>/..., JSON/<conversation>-<ts>.json.
type LayoutConfig struct {
	DownloadDir string `yaml:"download_dir"`
	ExtractDir  string `yaml:"extract_dir"`
	StagingDir  string `yaml:"staging_dir"`
}

// Validate validates the layout configuration.
func (c *LayoutConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DownloadDir, validation.Required),
		validation.Field(&c.ExtractDir, validation.Required),
		validation.Field(&c.StagingDir, validation.Required),
	)
}

// ParserConfig holds chat-parser options.
type ParserConfig struct {
	DateOrder string `yaml:"date_order"`
}

// Validate validates the parser configuration.
func (c *ParserConfig) Validate() error {
	if c.DateOrder == "" {
		c.DateOrder = DateOrderDayFirst
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.DateOrder, validation.Required,
			validation.In(DateOrderDayFirst, DateOrderMonthFirst)),
	)
}

// AnonymizerConfig holds the pseudonymization secret.
//
// The secret keys a reversible encryption: an operator holding it can still
// de-anonymize authors for legal or moderation review. The shipped
// placeholder provides no real confidentiality and is rejected outright.
type AnonymizerConfig struct {
	Secret string `yaml:"secret"`
}

// Validate validates the anonymizer configuration.
func (c *AnonymizerConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Secret, validation.Required),
	); err != nil {
		return err
	}
	if c.Secret == anonymize.PlaceholderSecret {
		return fmt.Errorf("anonymizer: secret equals the shipped placeholder, set your own")
	}
	return nil
}

// StrapiConfig holds the CMS endpoint and service credentials. The example
// config feeds these from STRAPI_URL, STRAPI_USER and STRAPI_PASSWORD via
// env expansion.
type StrapiConfig struct {
	URL        string `yaml:"url"`
	Identifier string `yaml:"identifier"`
	Password   string `yaml:"password"`
}

// Validate validates the Strapi configuration.
func (c *StrapiConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.Identifier, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

// CatalogConfig holds the local scrape-catalog database path.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// MediaConfig holds the optional S3 media store. When disabled, media
// files stay local and messages keep only their content-hash reference.
type MediaConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Validate validates the media configuration.
func (c *MediaConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Bucket, validation.Required),
		validation.Field(&c.Region, validation.Required),
		validation.Field(&c.AccessKey, validation.Required),
		validation.Field(&c.SecretKey, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Drive: DriveConfig{
			CredentialsFile: "credentials.json",
			ArchiveKeyword:  "WhatsApp Chat",
			PageSize:        1000,
		},
		Layout: LayoutConfig{
			DownloadDir: "./downloaded",
			ExtractDir:  "./extracted",
			StagingDir:  "./JSON",
		},
		Parser: ParserConfig{
			DateOrder: DateOrderDayFirst,
		},
		Anonymizer: AnonymizerConfig{},
		Catalog: CatalogConfig{
			Path: "./ansuz.db",
		},
	}
}
