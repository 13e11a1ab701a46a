package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bastiangx/cityserve/pkg/city"
	"github.com/bastiangx/cityserve/pkg/config"
	"github.com/bastiangx/cityserve/pkg/repository"
	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	alangulam = city.City{ID: 1279058, Country: "IN", Name: "Alangulam", Coord: city.Coord{Lat: 8.86667, Lon: 77.5}}
	alangayam = city.City{ID: 1279061, Country: "IN", Name: "Alangayam", Coord: city.Coord{Lat: 12.6, Lon: 78.75}}
	alandur   = city.City{ID: 1279064, Country: "IN", Name: "Alandur", Coord: city.Coord{Lat: 13.0025, Lon: 80.206108}}
	hokkaido  = city.City{ID: 1279064, Country: "JP", Name: "Hokkaidō", Coord: city.Coord{Lat: 43.06451, Lon: 141.346603}}
)

var testConfig = config.ServerConfig{MaxLimit: 3, DefaultLimit: 2, MaxPrefix: 10}

// slowStore advances a fake clock on every query to give responses a timing.
type slowStore struct {
	Store
	clock *clockwork.FakeClock
	delay time.Duration
}

func (s slowStore) Query(prefix string) ([]city.City, error) {
	s.clock.Advance(s.delay)
	return s.Store.Query(prefix)
}

func loadedRepo(t *testing.T) *repository.Repository {
	t.Helper()
	repo := repository.New(repository.SliceSource{alangulam, alangayam, alandur, hokkaido},
		repository.WithLogger(log.New(io.Discard)))
	require.NoError(t, repo.Load())
	return repo
}

func encodeAll(t *testing.T, msgs ...any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	for _, m := range msgs {
		require.NoError(t, enc.Encode(m))
	}
	return &buf
}

// run serves the encoded requests and returns a decoder over the output,
// positioned after the ready message.
func run(t *testing.T, store Store, clock clockwork.Clock, in io.Reader) (*msgpack.Decoder, ReadyMessage, error) {
	t.Helper()
	var out bytes.Buffer
	srv := NewServer(store, testConfig,
		WithIO(in, &out),
		WithClock(clock),
		WithLogger(log.New(io.Discard)))
	err := srv.Start(context.Background())

	dec := msgpack.NewDecoder(&out)
	var ready ReadyMessage
	require.NoError(t, dec.Decode(&ready))
	return dec, ready, err
}

func TestQuery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := slowStore{Store: loadedRepo(t), clock: clock, delay: 150 * time.Microsecond}

	in := encodeAll(t,
		QueryRequest{ID: "q1", Prefix: "al", Limit: 3},
		QueryRequest{ID: "q2", Prefix: "HOK"},
		QueryRequest{ID: "q3", Prefix: "zz"},
	)
	dec, ready, err := run(t, store, clock, in)
	require.NoError(t, err)
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, 4, ready.Count)

	var resp QueryResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "q1", resp.ID)
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, int64(150), resp.TimeTaken)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, []string{"Alandur", "Alangayam", "Alangulam"},
		[]string{resp.Results[0].Name, resp.Results[1].Name, resp.Results[2].Name})
	assert.Equal(t, alandur.ID, resp.Results[0].ID)
	assert.Equal(t, "IN", resp.Results[0].Country)
	assert.Equal(t, alandur.Coord.Geohash(), resp.Results[0].Geohash)
	assert.Nil(t, resp.Results[0].Distance)

	resp = QueryResponse{}
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "q2", resp.ID)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Hokkaidō", resp.Results[0].Name)

	resp = QueryResponse{}
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "q3", resp.ID)
	assert.Equal(t, 0, resp.Count)
	assert.Empty(t, resp.Results)
}

func TestQueryLimits(t *testing.T) {
	clock := clockwork.NewFakeClock()
	in := encodeAll(t,
		QueryRequest{ID: "default", Prefix: "a"},
		QueryRequest{ID: "capped", Prefix: "", Limit: 50},
		QueryRequest{ID: "negative", Prefix: "a", Limit: -4},
	)
	dec, _, err := run(t, loadedRepo(t), clock, in)
	require.NoError(t, err)

	var resp QueryResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Len(t, resp.Results, testConfig.DefaultLimit)
	assert.Equal(t, 3, resp.Count)

	resp = QueryResponse{}
	require.NoError(t, dec.Decode(&resp))
	assert.Len(t, resp.Results, testConfig.MaxLimit)
	assert.Equal(t, 4, resp.Count)
	assert.Equal(t, "Alandur", resp.Results[0].Name, "empty prefix lists in sorted order")

	resp = QueryResponse{}
	require.NoError(t, dec.Decode(&resp))
	assert.Len(t, resp.Results, testConfig.DefaultLimit)
}

func TestQueryWithOrigin(t *testing.T) {
	clock := clockwork.NewFakeClock()
	origin := alandur.Coord
	in := encodeAll(t, QueryRequest{ID: "near", Prefix: "alan", Origin: &origin})

	dec, _, err := run(t, loadedRepo(t), clock, in)
	require.NoError(t, err)

	var resp QueryResponse
	require.NoError(t, dec.Decode(&resp))
	require.NotEmpty(t, resp.Results)
	require.NotNil(t, resp.Results[0].Distance)
	assert.InDelta(t, 0, *resp.Results[0].Distance, 1e-6)
	require.NotNil(t, resp.Results[1].Distance)
	assert.Greater(t, *resp.Results[1].Distance, 100.0)
}

func TestQueryErrors(t *testing.T) {
	clock := clockwork.NewFakeClock()
	badOrigin := city.Coord{Lat: 123, Lon: 0}
	in := encodeAll(t,
		QueryRequest{ID: "long", Prefix: strings.Repeat("ā", testConfig.MaxPrefix+1)},
		QueryRequest{ID: "origin", Prefix: "al", Origin: &badOrigin},
		map[string]any{"id": "typed", "p": 42},
		map[string]any{"id": "what", "action": "explode"},
	)
	dec, _, err := run(t, loadedRepo(t), clock, in)
	require.NoError(t, err)

	for _, want := range []struct {
		id   string
		code int
	}{
		{"long", CodeBadRequest},
		{"origin", CodeBadRequest},
		{"", CodeBadRequest},
		{"what", CodeBadRequest},
	} {
		var resp ErrorResponse
		require.NoError(t, dec.Decode(&resp))
		assert.Equal(t, want.id, resp.ID)
		assert.Equal(t, want.code, resp.Code, want.id)
		assert.NotEmpty(t, resp.Error)
	}
}

func TestNotInitialized(t *testing.T) {
	repo := repository.New(repository.SliceSource{alandur}, repository.WithLogger(log.New(io.Discard)))
	in := encodeAll(t,
		QueryRequest{ID: "q", Prefix: "al"},
		ActionRequest{ID: "s", Action: ActionStats},
	)
	dec, ready, err := run(t, repo, clockwork.NewFakeClock(), in)
	require.NoError(t, err)
	assert.Equal(t, 0, ready.Count)

	for _, id := range []string{"q", "s"} {
		var resp ErrorResponse
		require.NoError(t, dec.Decode(&resp))
		assert.Equal(t, id, resp.ID)
		assert.Equal(t, CodeNotInitialized, resp.Code)
	}
}

func TestActions(t *testing.T) {
	alanya := city.City{ID: 323786, Country: "TR", Name: "Alanya", Coord: city.Coord{Lat: 36.54375, Lon: 31.99982}}
	in := encodeAll(t,
		ActionRequest{ID: "a1", Action: ActionInsert, City: &alanya},
		QueryRequest{ID: "q1", Prefix: "alan", Limit: 3},
		ActionRequest{ID: "a2", Action: ActionRemove, City: &alangayam},
		ActionRequest{ID: "a3", Action: ActionRemove, City: &alangayam},
		ActionRequest{ID: "a4", Action: ActionStats},
		ActionRequest{ID: "a5", Action: ActionInsert},
		ActionRequest{ID: "a6", Action: ActionInsert, City: &city.City{ID: 9, Name: "Nowhere", Coord: city.Coord{Lat: 0, Lon: 500}}},
		ActionRequest{ID: "a7", Action: ActionInsert, City: &city.City{ID: 9}},
	)
	dec, _, err := run(t, loadedRepo(t), clockwork.NewFakeClock(), in)
	require.NoError(t, err)

	var act ActionResponse
	require.NoError(t, dec.Decode(&act))
	assert.Equal(t, ActionResponse{ID: "a1", Status: "ok"}, act)

	var query QueryResponse
	require.NoError(t, dec.Decode(&query))
	assert.Equal(t, 4, query.Count)

	act = ActionResponse{}
	require.NoError(t, dec.Decode(&act))
	require.NotNil(t, act.Removed)
	assert.True(t, *act.Removed)

	act = ActionResponse{}
	require.NoError(t, dec.Decode(&act))
	require.NotNil(t, act.Removed)
	assert.False(t, *act.Removed)

	act = ActionResponse{}
	require.NoError(t, dec.Decode(&act))
	require.NotNil(t, act.Stats)
	assert.Equal(t, 4, act.Stats.Records)
	assert.Equal(t, int64(5), act.Stats.Requests)

	for _, id := range []string{"a5", "a6"} {
		var resp ErrorResponse
		require.NoError(t, dec.Decode(&resp))
		assert.Equal(t, id, resp.ID)
		assert.Equal(t, CodeBadRequest, resp.Code)
	}

	act = ActionResponse{}
	require.NoError(t, dec.Decode(&act))
	assert.Equal(t, "ignored", act.Status)
}

func TestMalformedStream(t *testing.T) {
	in := bytes.NewReader([]byte{0xc1})
	dec, _, err := run(t, loadedRepo(t), clockwork.NewFakeClock(), in)
	require.Error(t, err)

	var resp ErrorResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, CodeBadRequest, resp.Code)
}

func TestStopsOnCancelledContext(t *testing.T) {
	in := encodeAll(t, QueryRequest{ID: "q", Prefix: "al"})
	var out bytes.Buffer
	srv := NewServer(loadedRepo(t), testConfig, WithIO(in, &out), WithLogger(log.New(io.Discard)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, srv.Start(ctx))

	dec := msgpack.NewDecoder(&out)
	var ready ReadyMessage
	require.NoError(t, dec.Decode(&ready))
	var extra map[string]any
	assert.True(t, errors.Is(dec.Decode(&extra), io.EOF))
}

func TestExactQuery(t *testing.T) {
	in := encodeAll(t,
		QueryRequest{ID: "x1", Prefix: "ALANDUR", Exact: true},
		QueryRequest{ID: "x2", Prefix: "alan", Exact: true},
	)
	dec, _, err := run(t, loadedRepo(t), clockwork.NewFakeClock(), in)
	require.NoError(t, err)

	var resp QueryResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "x1", resp.ID)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, alandur.ID, resp.Results[0].ID)

	resp = QueryResponse{}
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "x2", resp.ID)
	assert.Equal(t, 0, resp.Count)
}

func TestConfigAction(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	settings := config.DefaultConfig()
	settings.Server = testConfig

	maxLimit, defaultLimit := 2, 1
	in := encodeAll(t,
		ActionRequest{ID: "c1", Action: ActionConfig, MaxLimit: &maxLimit, DefaultLimit: &defaultLimit},
		QueryRequest{ID: "q1", Prefix: "al"},
		QueryRequest{ID: "q2", Prefix: "al", Limit: 50},
		ActionRequest{ID: "c2", Action: ActionConfig},
	)
	var out bytes.Buffer
	srv := NewServer(loadedRepo(t), config.ServerConfig{},
		WithIO(in, &out),
		WithConfigFile(settings, path),
		WithLogger(log.New(io.Discard)))
	require.NoError(t, srv.Start(context.Background()))

	dec := msgpack.NewDecoder(&out)
	var ready ReadyMessage
	require.NoError(t, dec.Decode(&ready))

	var act ActionResponse
	require.NoError(t, dec.Decode(&act))
	assert.Equal(t, "ok", act.Status)
	require.NotNil(t, act.Config)
	assert.Equal(t, LimitsInfo{MaxLimit: 2, DefaultLimit: 1, MaxPrefix: testConfig.MaxPrefix}, *act.Config)

	var resp QueryResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Len(t, resp.Results, 1, "new default limit")
	resp = QueryResponse{}
	require.NoError(t, dec.Decode(&resp))
	assert.Len(t, resp.Results, 2, "new max limit")

	act = ActionResponse{}
	require.NoError(t, dec.Decode(&act))
	require.NotNil(t, act.Config)
	assert.Equal(t, 2, act.Config.MaxLimit, "empty config action reports current limits")

	saved, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Server.MaxLimit)
	assert.Equal(t, 1, saved.Server.DefaultLimit)
	assert.Equal(t, 2, settings.Server.MaxLimit)
}

func TestConfigActionWithoutFile(t *testing.T) {
	maxLimit := 5
	in := encodeAll(t, ActionRequest{ID: "c", Action: ActionConfig, MaxLimit: &maxLimit})
	dec, _, err := run(t, loadedRepo(t), clockwork.NewFakeClock(), in)
	require.NoError(t, err)

	var resp ErrorResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "c", resp.ID)
	assert.Equal(t, CodeBadRequest, resp.Code)
}

func TestConfigActionSaveFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	settings := config.DefaultConfig()
	settings.Server = testConfig

	maxLimit := 1
	in := encodeAll(t,
		ActionRequest{ID: "c", Action: ActionConfig, MaxLimit: &maxLimit},
		QueryRequest{ID: "q", Prefix: "al"},
	)
	var out bytes.Buffer
	srv := NewServer(loadedRepo(t), testConfig,
		WithIO(in, &out),
		WithConfigFile(settings, filepath.Join(blocker, config.FileName)),
		WithLogger(log.New(io.Discard)))
	require.NoError(t, srv.Start(context.Background()))

	dec := msgpack.NewDecoder(&out)
	var ready ReadyMessage
	require.NoError(t, dec.Decode(&ready))

	var errResp ErrorResponse
	require.NoError(t, dec.Decode(&errResp))
	assert.Equal(t, CodeInternal, errResp.Code)
	assert.Equal(t, testConfig.MaxLimit, settings.Server.MaxLimit, "limits stay put when saving fails")

	var resp QueryResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Len(t, resp.Results, testConfig.DefaultLimit)
}

func TestCancelUnblocksPendingRead(t *testing.T) {
	inR, inW := io.Pipe()
	defer inW.Close()
	outR, outW := io.Pipe()

	srv := NewServer(loadedRepo(t), testConfig, WithIO(inR, outW), WithLogger(log.New(io.Discard)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
	}()

	var ready ReadyMessage
	require.NoError(t, msgpack.NewDecoder(outR).Decode(&ready))
	assert.Equal(t, "ready", ready.Status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
