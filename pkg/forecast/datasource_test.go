package forecast

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedPage = `<!DOCTYPE html>
<html><head><title>fixtures</title></head>
<body>
<div id="app"></div>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"fixtures":[
  {"id":"f1","league":"premier-league","homeTeam":"arsenal","awayTeam":"everton",
   "kickoff":"2025-09-13T15:00:00Z","gameweek":"gw04",
   "odds":{"home":1.8,"draw":3.6,"away":4.5}}
]}}}
</script>
</body></html>`

func TestExtractEmbeddedPayloadFromHTML(t *testing.T) {
	payload, err := extractEmbeddedPayload([]byte(feedPage))
	require.NoError(t, err)

	fixtures := payload.Props.PageProps.Fixtures
	require.Len(t, fixtures, 1)
	assert.Equal(t, "f1", fixtures[0].ID)
	assert.Equal(t, "gw04", fixtures[0].Period)
	assert.Equal(t, "arsenal", fixtures[0].HomeTeam)
	require.NotNil(t, fixtures[0].Odds)
	assert.Equal(t, 1.8, fixtures[0].Odds.Home)
	assert.Equal(t, time.Date(2025, 9, 13, 15, 0, 0, 0, time.UTC), fixtures[0].Kickoff)
}

func TestExtractEmbeddedPayloadRawJSON(t *testing.T) {
	raw := `{"props":{"pageProps":{"results":[{"id":"f1","homeGoals":2,"awayGoals":0,"status":"finished"}]}}}`
	payload, err := extractEmbeddedPayload([]byte(raw))
	require.NoError(t, err)
	require.Len(t, payload.Props.PageProps.Results, 1)
	assert.Equal(t, 2, payload.Props.PageProps.Results[0].HomeGoals)
}

func TestExtractEmbeddedPayloadMissingTag(t *testing.T) {
	_, err := extractEmbeddedPayload([]byte("<html><body>no data here</body></html>"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "__NEXT_DATA__")
}

func TestSyncResultsWithoutFeed(t *testing.T) {
	resetConfig(t)
	Config.DataDir = t.TempDir()

	dir := PeriodDir(Config.DataDir, "2025/2026", "gw01")
	onDisk := []*ResultRecord{
		{FixtureID: "f1", HomeGoals: 1, AwayGoals: 0, Status: StatusFinished},
	}
	require.NoError(t, WriteResults(dir, onDisk))

	ds := &Datasource{} // no BaseURL: artifacts arrive externally
	results, err := ds.SyncResults(context.Background(), "2025/2026", "gw01")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "f1", results[0].FixtureID)
}

func TestSyncResultsMergesFeedOverDiskInStableOrder(t *testing.T) {
	resetConfig(t)
	Config.DataDir = t.TempDir()
	Config.CachePath = t.TempDir()
	Config.RequestIntervalSeconds = 0.001

	dir := PeriodDir(Config.DataDir, "2025/2026", "gw01")
	require.NoError(t, WriteResults(dir, []*ResultRecord{
		{FixtureID: "f2", HomeGoals: 1, AwayGoals: 1, Status: StatusFinished},
	}))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"props":{"pageProps":{"results":[
			{"id":"f3","homeGoals":0,"awayGoals":2,"status":"finished"},
			{"id":"f1","homeGoals":3,"awayGoals":0,"status":"finished"}
		]}}}`)
	}))
	defer server.Close()

	ds := NewDatasource(server.URL)
	results, err := ds.SyncResults(context.Background(), "2025/2026", "gw01")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "f1", results[0].FixtureID)
	assert.Equal(t, "f2", results[1].FixtureID)
	assert.Equal(t, "f3", results[2].FixtureID)

	// The artifact on disk carries the same order
	onDisk, err := LoadResults(dir)
	require.NoError(t, err)
	require.Len(t, onDisk, 3)
	assert.Equal(t, "f1", onDisk[0].FixtureID)
}

func TestIngestFixturesWithoutFeed(t *testing.T) {
	resetConfig(t)
	Config.DataDir = t.TempDir()

	ds := &Datasource{}
	created, err := ds.IngestFixtures(context.Background(), "2025/2026")
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}
