package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/livo-backend/pkg/config"
	"github.com/angelmondragon/livo-backend/pkg/logger"
)

const verifyTimeout = 10 * time.Second

var (
	ErrNotInitialized = errors.New("bigquery client not initialized")
	errNoProject      = errors.New("gcp project id is required")
	errNoDataset      = errors.New("bigquery dataset is required")
	errNoTable        = errors.New("bigquery table name is required")
)

// InsertIDer is implemented by rows that carry a stable de-duplication id.
// BigQuery drops streaming inserts that repeat an insert id within its
// de-duplication window, so redelivered events do not produce duplicate rows.
type InsertIDer interface {
	InsertID() string
}

// Client streams analytics rows into one dataset.
type Client struct {
	bq      *bigquery.Client
	dataset *bigquery.Dataset
	tables  []string
	logg    *logger.Logger
}

// NewClient dials BigQuery and fails fast when the dataset or any configured
// table is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errNoProject
	}
	dataset := strings.TrimSpace(cfg.Dataset)
	if dataset == "" {
		return nil, errNoDataset
	}
	tables := requiredTables(cfg)
	if len(tables) == 0 {
		return nil, errNoTable
	}

	bq, err := bigquery.NewClient(ctx, project, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(dataset), tables: tables, logg: logg}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"bq_project": project,
			"bq_dataset": dataset,
			"bq_tables":  tables,
		}), "bigquery client initialized")
	}
	return c, nil
}

func credentials(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func requiredTables(cfg config.BigQueryConfig) []string {
	var tables []string
	for _, name := range []string{cfg.BookingEventsTable} {
		if name = strings.TrimSpace(name); name != "" {
			tables = append(tables, name)
		}
	}
	return tables
}

// Ping checks that the dataset and every configured table exist. All missing
// tables are reported together.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return ErrNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describe("dataset", c.dataset.DatasetID, err)
	}
	var errs error
	for _, name := range c.tables {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			errs = multierr.Append(errs, describe("table", name, err))
		}
	}
	return errs
}

func describe(kind, name string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// InsertRows streams rows into table. Rows implementing InsertIDer are sent
// with their insert id; others get a generated one.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.bq == nil {
		return ErrNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errNoTable
	}
	if len(rows) == 0 {
		return nil
	}

	err := c.dataset.Table(table).Inserter().Put(ctx, savers(rows))
	var rowErrs bigquery.PutMultiError
	if errors.As(err, &rowErrs) {
		return fmt.Errorf("insert into %s: %d of %d rows rejected: %w", table, len(rowErrs), len(rows), err)
	}
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func savers(rows []any) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		if withID, ok := row.(InsertIDer); ok && withID.InsertID() != "" {
			out[i] = &bigquery.StructSaver{Struct: row, InsertID: withID.InsertID()}
			continue
		}
		out[i] = row
	}
	return out
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
