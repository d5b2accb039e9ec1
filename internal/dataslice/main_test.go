package dataslice_test

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var (
	logger *slog.Logger
)

func TestMain(m *testing.M) {
	flag.Parse()
	verbose := false
	if vFlag := flag.Lookup("test.v"); vFlag != nil && vFlag.Value.String() == "true" {
		verbose = true
	}
	if verbose {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.RFC3339,
			AddSource:  true,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	os.Exit(m.Run())
}

const sliceSchema = `
CREATE TABLE source_type (source_type_id INTEGER PRIMARY KEY, name TEXT NOT NULL, description TEXT);
CREATE TABLE site (site_id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE source (source_id INTEGER PRIMARY KEY, name TEXT NOT NULL, source_type_id INTEGER, description TEXT);
CREATE TABLE variable (variable_id INTEGER PRIMARY KEY, name TEXT NOT NULL, unit TEXT, description TEXT);
CREATE TABLE special_value_definition (
	special_value_definition_id INTEGER PRIMARY KEY,
	source_type_id INTEGER,
	description TEXT,
	categorical_value TEXT,
	numerical_value REAL
);
CREATE TABLE signal (
	signal_id INTEGER PRIMARY KEY,
	timestamp TIMESTAMP NOT NULL,
	value REAL,
	source_id INTEGER,
	variable_id INTEGER,
	site_id INTEGER
);

INSERT INTO source_type VALUES (1, 'rain_gauge', NULL), (2, 'flow_meter', NULL), (3, 'DS18B20', NULL);
INSERT INTO site VALUES (1, 'rub_morg'), (2, 'ara');
INSERT INTO source VALUES
	(1, 'bn_r02_school', 1, NULL),
	(2, 'bf_f02_mesikerstr', 2, NULL),
	(3, 'bf_ref_inflow_ara', 2, NULL),
	(4, 'bt_dl01_creek', 3, NULL),
	(5, 'bt_dl02_creek', 3, NULL);
INSERT INTO variable VALUES
	(1, 'rainfall_intensity', 'mm/h', NULL),
	(2, 'flow_rate', 'l/s', NULL),
	(3, 'water_temperature', '°C', NULL);
INSERT INTO special_value_definition VALUES (1, 1, 'sensor error', 'error', -999999), (2, 1, 'no data', 'missing', NULL);
`

type row struct {
	ts       string
	value    any
	source   int
	variable int
	site     int
}

func createSlice(t *testing.T, year int, rows []row) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("data_UWO_%d-01_%d-01.sqlite", year, year+1))
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(sliceSchema)
	require.NoError(t, err)
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO signal (timestamp, value, source_id, variable_id, site_id) VALUES (?, ?, ?, ?, ?)`,
			r.ts, r.value, r.source, r.variable, r.site)
		require.NoError(t, err)
	}
	return path
}

// Rain sums to 1500 mm in 2019 and 10 mm in 2020. Flow stays below the reference in 2019
// and exceeds it in 2020.
func testSlices(t *testing.T) map[int]string {
	t.Helper()
	return map[int]string{
		2019: createSlice(t, 2019, []row{
			{"2019-03-01 10:00:00", 60000.0, 1, 1, 1},
			{"2019-03-01 10:01:00", -5.0, 1, 1, 1},
			{"2019-03-01 10:02:00", 30000.0, 1, 1, 1},
			{"2019-03-01 10:00:00", 1000.0, 2, 2, 2},
			{"2019-03-01 10:01:00", 2000.0, 2, 2, 2},
			{"2019-03-01 10:00:00", 5000.0, 3, 2, 2},
			{"2019-03-04 10:00:00", 12.5, 4, 3, 1},
			{"2019-03-05 10:00:00", nil, 4, 3, 1},
			{"2019-03-02 10:00:00", 11.0, 5, 3, 1},
		}),
		2020: createSlice(t, 2020, []row{
			{"2020-03-01 10:00:00", 600.0, 1, 1, 1},
			{"2020-03-01 10:00:00", 2000.0, 2, 2, 2},
			{"2020-03-01 10:00:00", 1000.0, 3, 2, 2},
		}),
	}
}
