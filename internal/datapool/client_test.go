package datapool_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testSchema = `
CREATE TABLE source_type (source_type_id serial PRIMARY KEY, name text NOT NULL, description text);
CREATE TABLE site (site_id serial PRIMARY KEY, name text NOT NULL);
CREATE TABLE source (source_id serial PRIMARY KEY, name text NOT NULL, source_type_id int REFERENCES source_type, description text);
CREATE TABLE variable (variable_id serial PRIMARY KEY, name text NOT NULL, unit text, description text);
CREATE TABLE signal (
	signal_id serial PRIMARY KEY,
	timestamp timestamp NOT NULL,
	value double precision,
	source_id int REFERENCES source,
	variable_id int REFERENCES variable,
	site_id int REFERENCES site
);

INSERT INTO source_type (name, description) VALUES ('bluelab', 'level sensor'), ('temperature', NULL);
INSERT INTO site (name) VALUES ('fehraltorf');
INSERT INTO source (name, source_type_id, description) VALUES ('bl_dl320', 1, 'outlet'), ('bt_t01', 2, NULL);
INSERT INTO variable (name, unit, description) VALUES
	('water_level', 'm', 'Main measurement parameter: level'),
	('battery', 'V', 'supply voltage'),
	('temperature', '°C', 'Main measurement parameter: temperature');

INSERT INTO signal (timestamp, value, source_id, variable_id, site_id) VALUES
	('2024-01-01 00:00', 0.10, 1, 1, 1),
	('2024-01-01 00:10', 0.12, 1, 1, 1),
	('2024-01-01 00:10', 0.12, 1, 1, 1),
	('2024-01-01 00:20', NULL, 1, 1, 1),
	('2024-01-08 00:00', 0.30, 1, 1, 1),
	('2024-01-01 00:00', 3.6, 1, 2, 1),
	('2024-01-01 00:00', 12.5, 2, 3, 1),
	('2024-01-01 00:30', 13.5, 2, 3, 1);
`

func startDatapool(t *testing.T) *datapool.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("datapool"),
		postgres.WithUsername("datapool"),
		postgres.WithPassword("datapool"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to cleanup postgres container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	uri := fmt.Sprintf("postgres://datapool:datapool@%s:%s/datapool?sslmode=disable", host, port.Port())

	pool, err := pgxpool.New(ctx, uri)
	require.NoError(t, err)
	defer pool.Close()
	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)

	client, err := datapool.Connect(ctx, &datapool.ClientConfig{Logger: logger, ConnString: uri})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestSensorHealth_Datapool_Client(t *testing.T) {
	client := startDatapool(t)
	ctx := t.Context()

	t.Run("sources", func(t *testing.T) {
		sources, err := client.Sources(ctx)
		require.NoError(t, err)
		require.Len(t, sources, 2)
		assert.Equal(t, datapool.Source{ID: 1, Name: "bl_dl320", Type: "bluelab", Description: "outlet"}, sources[0])
		assert.Equal(t, "temperature", sources[1].Type)
	})

	t.Run("main parameters", func(t *testing.T) {
		vars, err := client.MainParameters(ctx, "bl_dl320", time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, vars, 1)
		assert.Equal(t, "water_level", vars[0].Name)
		assert.True(t, vars[0].IsMain())
	})

	t.Run("main parameters outside the window", func(t *testing.T) {
		vars, err := client.MainParameters(ctx, "bl_dl320",
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC))
		require.NoError(t, err)
		require.Len(t, vars, 1)

		vars, err = client.MainParameters(ctx, "bl_dl320",
			time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Empty(t, vars)
	})

	t.Run("records with null values", func(t *testing.T) {
		records, err := client.Records(ctx, datapool.SignalQuery{
			Source:   "bl_dl320",
			Variable: "water_level",
			From:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			To:       time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC),
		})
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, 0.10, records[0].Value)
		assert.Equal(t, "m", records[0].Unit)
		assert.True(t, math.IsNaN(records[3].Value))
	})

	t.Run("group records hourly", func(t *testing.T) {
		records, err := client.GroupSignals(ctx, datapool.GroupQuery{
			Group:  "bt",
			Units:  []string{"°C"},
			Since:  time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
			Hourly: true,
		})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, 13.0, records[0].Value)
	})

	t.Run("weekly counts", func(t *testing.T) {
		counts, err := client.WeeklyCounts(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Len(t, counts, 4)
		assert.Equal(t, datapool.WeeklyCount{Week: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Source: "bl_dl320", Variable: "battery", Count: 1}, counts[0])
		assert.Equal(t, int64(4), counts[1].Count)
	})

	t.Run("source variables", func(t *testing.T) {
		sv, err := client.SourceVariables(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{
			"bl_dl320": {"battery", "water_level"},
			"bt_t01":   {"temperature"},
		}, sv)
	})

	t.Run("duplicates", func(t *testing.T) {
		dups, err := client.Duplicates(ctx, "bl_dl320", "water_level")
		require.NoError(t, err)
		require.Len(t, dups, 1)
		assert.Equal(t, int64(2), dups[0].Occurrences)
		assert.Equal(t, 0.12, dups[0].Value)
	})

	t.Run("source types", func(t *testing.T) {
		types, err := client.SourceTypes(ctx)
		require.NoError(t, err)
		require.Len(t, types, 2)
		assert.Equal(t, "bluelab", types[0].Name)
		assert.Equal(t, "level sensor", types[0].Description)
	})

	t.Run("invalid group", func(t *testing.T) {
		_, err := client.GroupSignals(ctx, datapool.GroupQuery{Group: "b", Units: []string{"m"}})
		require.Error(t, err)
	})
}
