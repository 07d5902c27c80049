package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/daxtrader54/mypredictify/internal/logger"
	"github.com/daxtrader54/mypredictify/pkg/transport"
)

// Datasource fetches fixture and result data from the external feed.
// The feed serves server-rendered pages with the payload embedded in a
// script#__NEXT_DATA__ tag, so responses are parsed as HTML first and
// JSON second. All requests share a rate limiter so repeated cycles
// never hammer the source.
type Datasource struct {
	BaseURL     string
	FixturesURL string
	ResultsURL  string
	limiter     *rate.Limiter
}

var (
	datasourceInstance *Datasource
	datasourceOnce     sync.Once
)

// NewDatasource builds a client for the given feed root. An empty URL
// disables fetching entirely.
func NewDatasource(baseURL string) *Datasource {
	baseURL = strings.TrimRight(baseURL, "/")
	interval := time.Duration(Config.RequestIntervalSeconds * float64(time.Second))
	if interval <= 0 {
		interval = time.Second
	}
	return &Datasource{
		BaseURL:     baseURL,
		FixturesURL: fmt.Sprintf("%s/fixtures", baseURL),
		ResultsURL:  fmt.Sprintf("%s/results", baseURL),
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
	}
}

// GetDatasourceInstance returns the singleton Datasource built from the
// current configuration.
func GetDatasourceInstance() *Datasource {
	datasourceOnce.Do(func() {
		datasourceInstance = NewDatasource(Config.BaseURL)
	})
	return datasourceInstance
}

// feedPayload mirrors the fragment of the embedded page state this
// pipeline consumes.
type feedPayload struct {
	Props struct {
		PageProps struct {
			Fixtures []feedFixture `json:"fixtures"`
			Results  []feedResult  `json:"results"`
		} `json:"pageProps"`
	} `json:"props"`
}

type feedFixture struct {
	ID        string             `json:"id"`
	League    string             `json:"league"`
	HomeTeam  string             `json:"homeTeam"`
	AwayTeam  string             `json:"awayTeam"`
	Kickoff   time.Time          `json:"kickoff"`
	Period    string             `json:"gameweek"`
	Standings *StandingsSnapshot `json:"standings,omitempty"`
	Odds      *OddsSnapshot      `json:"odds,omitempty"`
}

type feedResult struct {
	ID        string `json:"id"`
	HomeGoals int    `json:"homeGoals"`
	AwayGoals int    `json:"awayGoals"`
	Status    string `json:"status"`
}

// fetchPayload retrieves a feed page, honoring the rate limit and a
// local cache. Cached payloads are reused for cacheTTL so a crashed run
// can be retried without refetching everything.
func (d *Datasource) fetchPayload(ctx context.Context, url, cacheName string, cacheTTL time.Duration) (*feedPayload, error) {
	cacheFile := filepath.Join(Config.CachePath, cacheName)
	if info, err := os.Stat(cacheFile); err == nil && time.Since(info.ModTime()) < cacheTTL {
		data, err := os.ReadFile(cacheFile)
		if err == nil {
			payload := &feedPayload{}
			if err := json.Unmarshal(data, payload); err == nil {
				logger.Debug("Loaded feed payload from cache", cacheFile)
				return payload, nil
			}
			logger.Warn("Discarding unreadable cache file", cacheFile)
		}
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	body, err := transport.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	payload, err := extractEmbeddedPayload(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed page %s: %w", url, err)
	}

	if err := os.MkdirAll(Config.CachePath, 0755); err == nil {
		if data, err := json.MarshalIndent(payload, "", "  "); err == nil {
			if err := os.WriteFile(cacheFile, data, 0644); err != nil {
				logger.Warn("Failed to write cache file", cacheFile, err)
			}
		}
	}
	return payload, nil
}

// extractEmbeddedPayload pulls the JSON page state out of the
// script#__NEXT_DATA__ tag of a server-rendered page. Pages that are
// already raw JSON are accepted too.
func extractEmbeddedPayload(body []byte) (*feedPayload, error) {
	payload := &feedPayload{}
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), payload); err != nil {
			return nil, fmt.Errorf("invalid JSON payload: %w", err)
		}
		return payload, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}
	var embedded string
	doc.Find("script#__NEXT_DATA__").Each(func(i int, s *goquery.Selection) {
		embedded = s.Text()
	})
	if embedded == "" {
		return nil, fmt.Errorf("could not find __NEXT_DATA__ script tag")
	}
	if err := json.Unmarshal([]byte(embedded), payload); err != nil {
		return nil, fmt.Errorf("invalid embedded payload: %w", err)
	}
	return payload, nil
}

// IngestFixtures pulls the season's fixtures from the feed and writes a
// matches.json for every scheduling period that does not have one yet.
// Periods that already hold fixtures are never overwritten. With no
// BaseURL configured the artifacts are assumed to arrive by other means
// and ingestion is an explicit skip.
func (d *Datasource) IngestFixtures(ctx context.Context, season string) (int, error) {
	if d.BaseURL == "" {
		logger.Info("No feed URL configured, skipping fixture ingestion")
		return 0, nil
	}

	url := fmt.Sprintf("%s?season=%s", d.FixturesURL, SeasonDirName(season))
	cacheName := fmt.Sprintf("fixtures-%s.json", SeasonDirName(season))
	payload, err := d.fetchPayload(ctx, url, cacheName, 6*time.Hour)
	if err != nil {
		return 0, err
	}

	byPeriod := map[string][]*MatchRecord{}
	for _, f := range payload.Props.PageProps.Fixtures {
		if f.ID == "" || f.Period == "" {
			continue
		}
		byPeriod[f.Period] = append(byPeriod[f.Period], &MatchRecord{
			FixtureID: f.ID,
			League:    f.League,
			HomeTeam:  f.HomeTeam,
			AwayTeam:  f.AwayTeam,
			Kickoff:   f.Kickoff,
			Standings: f.Standings,
			Odds:      f.Odds,
		})
	}

	created := 0
	for period, matches := range byPeriod {
		dir := PeriodDir(Config.DataDir, season, period)
		if _, err := os.Stat(filepath.Join(dir, MatchesFile)); err == nil {
			continue
		}
		if err := WriteMatches(dir, matches); err != nil {
			logger.Error("Failed to write fixtures for period", period, err)
			continue
		}
		logger.Info("Ingested new period", period, fmt.Sprintf("%d fixtures", len(matches)))
		created++
	}
	return created, nil
}

// SyncResults refreshes a period's results.json from the feed, merging
// fetched results over whatever the file already holds so an external
// collaborator's entries survive. Returns the merged result set.
func (d *Datasource) SyncResults(ctx context.Context, season, period string) ([]*ResultRecord, error) {
	dir := PeriodDir(Config.DataDir, season, period)
	existing, err := LoadResults(dir)
	if err != nil {
		return nil, err
	}

	if d.BaseURL == "" {
		logger.Debug("No feed URL configured, using on-disk results for period", period)
		return existing, nil
	}

	url := fmt.Sprintf("%s?season=%s&gameweek=%s", d.ResultsURL, SeasonDirName(season), period)
	cacheName := fmt.Sprintf("results-%s-%s.json", SeasonDirName(season), period)
	payload, err := d.fetchPayload(ctx, url, cacheName, 30*time.Minute)
	if err != nil {
		// A feed outage must not erase what we already know.
		logger.Warn("Result sync failed, keeping on-disk results", period, err)
		return existing, nil
	}

	merged := map[string]*ResultRecord{}
	for _, r := range existing {
		merged[r.FixtureID] = r
	}
	for _, r := range payload.Props.PageProps.Results {
		if r.ID == "" {
			continue
		}
		merged[r.ID] = &ResultRecord{
			FixtureID: r.ID,
			HomeGoals: r.HomeGoals,
			AwayGoals: r.AwayGoals,
			Status:    r.Status,
		}
	}

	results := make([]*ResultRecord, 0, len(merged))
	for _, r := range merged {
		results = append(results, r)
	}
	// Stable artifact order regardless of map iteration
	sort.Slice(results, func(i, j int) bool { return results[i].FixtureID < results[j].FixtureID })
	if len(results) > len(existing) || len(payload.Props.PageProps.Results) > 0 {
		if err := WriteResults(dir, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}
