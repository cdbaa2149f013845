// Package fields loads crop field boundaries from PostGIS. Each schema
// holds one "<name>_consolidado" table per season; a table's fields define
// the footprint of an ET run and its name encodes the season dates.
package fields

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"

	"github.com/chrissnell/sebal/internal/log"
	"github.com/chrissnell/sebal/internal/types"
)

// DefaultBuffer pads the field bounds, in footprint units.
const DefaultBuffer = 0.01

// Field is one sown lot. Several rows may share a campo/lote pair; together
// they outline the lot.
type Field struct {
	Campo    string
	Lote     string
	Geometry orb.Geometry
	Sown     string
}

// Key identifies the lot as "<campo>_<lote>".
func (f Field) Key() string {
	return f.Campo + "_" + f.Lote
}

type fieldRow struct {
	Campo string `db:"campo"`
	Lote  string `db:"lote"`
	Geom  []byte `db:"geom"`
	Sown  string `db:"sown"`
}

// Loader reads field tables from one schema.
type Loader struct {
	db     *sqlx.DB
	schema string
}

// Open connects to PostGIS through lib/pq.
func Open(ctx context.Context, dsn, schema string) (*Loader, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to field database: %w", err)
	}
	return &Loader{db: db, schema: schema}, nil
}

// Close closes the connection pool.
func (l *Loader) Close() error {
	return l.db.Close()
}

// Tables lists the consolidated field tables of the schema.
func (l *Loader) Tables(ctx context.Context) ([]string, error) {
	var tables []string
	err := l.db.SelectContext(ctx, &tables, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_name LIKE '%\_consolidado'
		ORDER BY table_name`, l.schema)
	if err != nil {
		return nil, fmt.Errorf("listing field tables in %s: %w", l.schema, err)
	}
	return tables, nil
}

// Load returns the fields of a table that have a sowing date.
func (l *Loader) Load(ctx context.Context, table string) ([]Field, error) {
	q := fmt.Sprintf(`
		SELECT COALESCE(campo::text, '') AS campo,
		       COALESCE(lote::text, '') AS lote,
		       ST_AsBinary(geom) AS geom,
		       COALESCE(fecha_siembra::text, '') AS sown
		FROM %s.%s
		WHERE geom IS NOT NULL
		ORDER BY campo, lote`, pq.QuoteIdentifier(l.schema), pq.QuoteIdentifier(table))

	var rows []fieldRow
	if err := l.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("loading %s.%s: %w", l.schema, table, err)
	}

	fields, err := decode(rows)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", l.schema, table, err)
	}
	log.Infof("loaded %d of %d fields from %s.%s", len(fields), len(rows), l.schema, table)
	return fields, nil
}

func decode(rows []fieldRow) ([]Field, error) {
	var out []Field
	for i, r := range rows {
		if r.Sown == "" {
			continue
		}
		g, err := wkb.Unmarshal(r.Geom)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, Field{Campo: r.Campo, Lote: r.Lote, Geometry: g, Sown: r.Sown})
	}
	return out, nil
}

// FromGeoJSON reads fields from a feature collection whose features carry
// "campo", "lote" and "fecha_siembra" properties. Features without a
// sowing date are dropped, as in Load.
func FromGeoJSON(b []byte) ([]Field, error) {
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidGeometry, err)
	}
	var out []Field
	for i, f := range fc.Features {
		sown := property(f.Properties, "fecha_siembra")
		if sown == "" || f.Geometry == nil {
			continue
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("%w: feature %d is a %s", types.ErrInvalidGeometry, i, f.Geometry.GeoJSONType())
		}
		out = append(out, Field{
			Campo:    property(f.Properties, "campo"),
			Lote:     property(f.Properties, "lote"),
			Geometry: f.Geometry,
			Sown:     sown,
		})
	}
	return out, nil
}

func property(p geojson.Properties, key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Footprint returns the buffered bounding box of the fields as the run
// footprint for the given path/row.
func Footprint(fields []Field, path, row int, buffer float64) (types.Footprint, error) {
	if len(fields) == 0 {
		return types.Footprint{}, fmt.Errorf("%w: no fields", types.ErrInvalidGeometry)
	}
	b := fields[0].Geometry.Bound()
	for _, f := range fields[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	b = b.Pad(buffer)

	fp := types.Footprint{Path: path, Row: row, Polygon: b.ToPolygon()}
	if err := fp.Validate(); err != nil {
		return types.Footprint{}, err
	}
	return fp, nil
}

// Season is a month/day window. SpanYears moves the end into the next
// year.
type Season struct {
	StartMonth time.Month `yaml:"start_month"`
	StartDay   int        `yaml:"start_day"`
	EndMonth   time.Month `yaml:"end_month"`
	EndDay     int        `yaml:"end_day"`
	SpanYears  bool       `yaml:"span_years"`
}

// Seasons configures the date windows for summer ("ver") and winter ("inv")
// tables.
type Seasons struct {
	Summer Season `yaml:"summer"`
	Winter Season `yaml:"winter"`
}

// DefaultSeasons covers the southern hemisphere irrigation seasons.
func DefaultSeasons() Seasons {
	return Seasons{
		Summer: Season{StartMonth: time.December, StartDay: 1, EndMonth: time.March, EndDay: 31, SpanYears: true},
		Winter: Season{StartMonth: time.June, StartDay: 1, EndMonth: time.September, EndDay: 30},
	}
}

var (
	summerPattern = regexp.MustCompile(`_ver(\d{2})(\d{2})_`)
	winterPattern = regexp.MustCompile(`_inv(\d{2})_`)
)

// SeasonDates derives the acquisition window from a table name such as
// "carballal_ver2122_consolidado". The end day is included. ok is false when
// the name carries no season.
func SeasonDates(table string, s Seasons) (dr types.DateRange, ok bool) {
	name := strings.ToLower(table)
	if m := summerPattern.FindStringSubmatch(name); m != nil {
		y1, y2 := year(m[1]), year(m[2])
		end := y1
		if s.Summer.SpanYears {
			end = y2
		}
		return window(s.Summer, y1, end), true
	}
	if m := winterPattern.FindStringSubmatch(name); m != nil {
		y := year(m[1])
		end := y
		if s.Winter.SpanYears {
			end = y + 1
		}
		return window(s.Winter, y, end), true
	}
	return types.DateRange{}, false
}

func year(two string) int {
	n, _ := strconv.Atoi(two)
	return 2000 + n
}

func window(s Season, startYear, endYear int) types.DateRange {
	return types.DateRange{
		Start: time.Date(startYear, s.StartMonth, s.StartDay, 0, 0, 0, 0, time.UTC),
		End:   time.Date(endYear, s.EndMonth, s.EndDay, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1),
	}
}
