package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairwatch/internal/config"
	"pairwatch/internal/storage"
	"pairwatch/internal/trade"
)

const testPair = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func sampleAlerts(n int) []storage.AlertRecord {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alerts := make([]storage.AlertRecord, 0, n)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		side := trade.SideBuy
		if i%2 == 1 {
			side = trade.SideSell
		}
		alerts = append(alerts, storage.AlertRecord{
			ID:        uuid.New(),
			ChatID:    42,
			Pair:      testPair,
			TradeID:   "tx" + string(rune('a'+i%26)),
			Side:      string(side),
			AmountUSD: decimal.NewNullDecimal(decimal.NewFromInt(int64(100 * (i + 1)))),
			TradeTime: &ts,
			Delivered: true,
			CreatedAt: ts.Add(time.Second),
		})
	}
	return alerts
}

func TestDownsampleAlertsKeepsEnds(t *testing.T) {
	alerts := sampleAlerts(10)

	require.Len(t, downsampleAlerts(alerts, 0), 10)
	require.Len(t, downsampleAlerts(alerts, 20), 10)

	out := downsampleAlerts(alerts, 4)
	require.Len(t, out, 4)
	require.Equal(t, alerts[0].ID, out[0].ID)
	require.Equal(t, alerts[9].ID, out[3].ID)

	single := downsampleAlerts(alerts, 1)
	require.Len(t, single, 1)
	require.Equal(t, alerts[9].ID, single[0].ID)
}

func TestExportWindowDefaultsToLastWeek(t *testing.T) {
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	from, to, err := exportWindow(ExportOptions{}, now)
	require.NoError(t, err)
	require.Equal(t, now, to)
	require.Equal(t, now.Add(-7*24*time.Hour), from)

	later := now.Add(time.Hour)
	_, _, err = exportWindow(ExportOptions{From: &later}, now)
	require.Error(t, err)
}

func TestWriteAlertsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "alerts.csv")
	alerts := sampleAlerts(3)
	msg := "chat not found"
	alerts[2].Delivered = false
	alerts[2].Error = &msg

	require.NoError(t, writeAlertsCSV(path, alerts))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, "alert_id", rows[0][0])
	require.Equal(t, "42", rows[1][2])
	require.Equal(t, testPair, rows[1][3])
	require.Equal(t, "BUY", rows[1][5])
	require.Equal(t, "100", rows[1][6])
	require.Equal(t, "", rows[1][7])
	require.Equal(t, "false", rows[3][10])
	require.Equal(t, msg, rows[3][11])
}

func TestWriteAlertsPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.png")
	require.NoError(t, writeAlertsPNG(path, sampleAlerts(6)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "output must be a PNG")
}

func TestWriteAlertsPNGWithoutChartableAlerts(t *testing.T) {
	alerts := sampleAlerts(2)
	for i := range alerts {
		alerts[i].TradeTime = nil
	}
	require.Error(t, writeAlertsPNG(filepath.Join(t.TempDir(), "x.png"), alerts))
}

func TestPrintAlerts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printAlerts(&buf, nil))
	require.Equal(t, "no alerts found\n", buf.String())

	buf.Reset()
	alerts := sampleAlerts(1)
	msg := "line one\nline two"
	alerts[0].Error = &msg
	require.NoError(t, printAlerts(&buf, alerts))

	out := buf.String()
	require.Contains(t, out, "Sent (UTC)")
	require.Contains(t, out, "0x5aAe…eAed")
	require.Contains(t, out, "100.00")
	require.Contains(t, out, "line one line two")
}

func TestSyntheticTrade(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tr, err := syntheticTrade(SimulateOptions{}, now)
	require.NoError(t, err)
	require.Equal(t, trade.SideBuy, tr.Side)
	require.True(t, tr.AmountUSD.Decimal.Equal(decimal.NewFromInt(1000)))
	require.Equal(t, now.Unix(), tr.Unix())
	require.True(t, strings.HasPrefix(tr.ID, "sim-"))

	tr, err = syntheticTrade(SimulateOptions{Side: "sell", USD: "$2,500"}, now)
	require.NoError(t, err)
	require.Equal(t, trade.SideSell, tr.Side)
	require.True(t, tr.AmountUSD.Decimal.Equal(decimal.NewFromInt(2500)))

	_, err = syntheticTrade(SimulateOptions{Side: "sideways"}, now)
	require.Error(t, err)
	_, err = syntheticTrade(SimulateOptions{USD: "-1"}, now)
	require.Error(t, err)
}

func TestSimulateAlertDeliversThroughTelegram(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []map[string]any
	)
	telegram := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		body := make(map[string]any)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		sent = append(sent, body)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer telegram.Close()

	market := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pairs":[{"priceUsd":"2","priceNative":"0.01","liquidity":{"usd":50000},
			"url":"https://example.test/p","baseToken":{"symbol":"TKN"},"quoteToken":{"symbol":"SOL"}}]}`))
	}))
	defer market.Close()

	cfg := &config.Config{}
	cfg.Telegram.BotToken = "token"
	cfg.Telegram.APIBase = telegram.URL
	cfg.Telegram.SendTimeout = time.Second
	cfg.Market.PriceURL = market.URL + "/pairs/{pair}"
	cfg.Market.RequestTimeout = time.Second

	a := NewApp(cfg, zerolog.Nop())
	err := a.SimulateAlert(context.Background(), SimulateOptions{ChatID: 7, Pair: strings.ToLower(testPair), Side: "buy", USD: "500"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 1)
	require.Equal(t, float64(7), sent[0]["chat_id"])
	text, _ := sent[0]["text"].(string)
	require.Contains(t, text, "[BUY] TKN/SOL")
	require.Contains(t, text, "Value: $500")
	require.Contains(t, text, "Amount: 250")
}

func TestSimulateAlertRequiresChat(t *testing.T) {
	cfg := &config.Config{}
	cfg.Telegram.BotToken = "token"
	err := NewApp(cfg, zerolog.Nop()).SimulateAlert(context.Background(), SimulateOptions{Pair: testPair})
	require.Error(t, err)
}

type memoryJournal struct {
	migrated bool
	alerts   []storage.AlertRecord
	closed   bool
}

var errNoRelation = errors.New(`relation "trade_alerts" does not exist`)

func (m *memoryJournal) Migrate(context.Context) error {
	m.migrated = true
	return nil
}

func (m *memoryJournal) ListRecentAlerts(_ context.Context, limit int) ([]storage.AlertRecord, error) {
	if !m.migrated {
		return nil, errNoRelation
	}
	if limit < len(m.alerts) {
		return m.alerts[:limit], nil
	}
	return m.alerts, nil
}

func (m *memoryJournal) ListAlertsBetween(_ context.Context, from, to time.Time) ([]storage.AlertRecord, error) {
	if !m.migrated {
		return nil, errNoRelation
	}
	var out []storage.AlertRecord
	for _, alert := range m.alerts {
		if !alert.CreatedAt.Before(from) && alert.CreatedAt.Before(to) {
			out = append(out, alert)
		}
	}
	return out, nil
}

func (m *memoryJournal) CountAlerts(context.Context) (int64, error) {
	if !m.migrated {
		return 0, errNoRelation
	}
	return int64(len(m.alerts)), nil
}

func (m *memoryJournal) DeleteAlertsBefore(_ context.Context, olderThan time.Time) error {
	if !m.migrated {
		return errNoRelation
	}
	kept := m.alerts[:0]
	for _, alert := range m.alerts {
		if !alert.CreatedAt.Before(olderThan) {
			kept = append(kept, alert)
		}
	}
	m.alerts = kept
	return nil
}

func appWithJournal(j *memoryJournal, out io.Writer) *App {
	cfg := &config.Config{}
	cfg.Export.MaxDataPoints = 100
	a := NewApp(cfg, zerolog.Nop())
	a.out = out
	a.openAlertDB = func(context.Context) (alertJournal, func(), error) {
		return j, func() { j.closed = true }, nil
	}
	return a
}

func TestShowOnFreshJournalCreatesTable(t *testing.T) {
	j := &memoryJournal{}
	var out bytes.Buffer

	require.NoError(t, appWithJournal(j, &out).Show(context.Background(), ShowOptions{Limit: 5}))
	require.True(t, j.migrated)
	require.True(t, j.closed)
	require.Contains(t, out.String(), "no alerts found")
	require.Contains(t, out.String(), "0 of 0 journalled alerts shown")
}

func TestExportOnFreshJournalIsEmpty(t *testing.T) {
	j := &memoryJournal{}
	path := filepath.Join(t.TempDir(), "alerts.csv")

	require.NoError(t, appWithJournal(j, io.Discard).Export(context.Background(), ExportOptions{CSVPath: path}))
	require.True(t, j.migrated)
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "empty window writes nothing")
}

func TestPruneDeletesOldAlerts(t *testing.T) {
	now := time.Now().UTC()
	j := &memoryJournal{alerts: []storage.AlertRecord{
		{ID: uuid.New(), CreatedAt: now.Add(-48 * time.Hour)},
		{ID: uuid.New(), CreatedAt: now.Add(-time.Minute)},
	}}

	require.NoError(t, appWithJournal(j, io.Discard).Prune(context.Background(), PruneOptions{OlderThan: 24 * time.Hour}))
	require.True(t, j.migrated)
	require.Len(t, j.alerts, 1)

	require.Error(t, appWithJournal(j, io.Discard).Prune(context.Background(), PruneOptions{}))
}

func TestJournalCommandsRequireDatabase(t *testing.T) {
	a := NewApp(&config.Config{}, zerolog.Nop())
	err := a.Show(context.Background(), ShowOptions{Limit: 1})
	require.ErrorContains(t, err, "database not configured")
}
