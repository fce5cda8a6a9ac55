package tariff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"parcelquote/internal/config"
)

// ErrUnknownSource is returned by NewSourceByName for unsupported names.
var ErrUnknownSource = errors.New("unknown rate source")

// Source reads the raw rows of one tariff table. sourceID names the
// provider's base, tableID the channel's table inside it.
type Source interface {
	FetchRawRows(ctx context.Context, sourceID, tableID string) ([]RawRow, error)
}

// Deps carries the shared clients a source may need.
type Deps struct {
	HTTPClient *http.Client
	Pool       *pgxpool.Pool
	Logger     *zap.Logger
}

// NewSourceByName returns the Source selected by cfg.RateSource.
func NewSourceByName(cfg config.Config, deps Deps) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.RateSource)) {
	case "airtable", "":
		return NewAirtable(cfg.Airtable, deps.HTTPClient, deps.Logger), nil
	case "postgres":
		if deps.Pool == nil {
			return nil, fmt.Errorf("postgres rate source needs a database pool")
		}
		return NewPostgres(deps.Pool), nil
	case "static":
		if cfg.StaticRowsFile == "" {
			return NewStatic(nil), nil
		}
		return LoadStatic(cfg.StaticRowsFile)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.RateSource)
	}
}

// Static serves rows held in memory, keyed by sourceID and tableID.
type Static struct {
	tables map[string][]RawRow
}

func StaticKey(sourceID, tableID string) string { return sourceID + "/" + tableID }

func NewStatic(tables map[string][]RawRow) *Static {
	if tables == nil {
		tables = map[string][]RawRow{}
	}
	return &Static{tables: tables}
}

// LoadStatic reads a JSON object of the form {"<sourceID>/<tableID>": [rows]}.
func LoadStatic(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read static rows: %w", err)
	}
	var tables map[string][]RawRow
	if err := json.Unmarshal(b, &tables); err != nil {
		return nil, fmt.Errorf("decode static rows: %w", err)
	}
	return NewStatic(tables), nil
}

func (s *Static) FetchRawRows(ctx context.Context, sourceID, tableID string) ([]RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := s.tables[StaticKey(sourceID, tableID)]
	out := make([]RawRow, len(rows))
	copy(out, rows)
	return out, nil
}
