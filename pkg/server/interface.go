/*
Package server implements msgpack IPC for city name lookups.

Clients write msgpack maps to the server's stdin, one after another with no
framing, and read one msgpack map per request back from stdout. Every request
carries an "id" echoed in its reply. Logs go to stderr.

On startup the server announces itself:

	{"status": "ready", "c": 209579}

# Queries

A query names a prefix and an optional limit:

	{"id": "q1", "p": "al", "l": 3}

The reply lists at most l matches and the total match count. Times are in
microseconds:

	{"id": "q1", "r": [{"i": 1279064, "c": "IN", "n": "Alandur", "la": 13.0025, "lo": 80.2061, "g": "tf2d6kzdj"}, ...], "c": 3019, "t": 41}

Matching ignores case. An empty prefix lists every city sorted by name and then
country code; any other prefix returns matches grouped by name. A missing or
non-positive limit uses the server default, and limits are capped at the
configured maximum.

Setting "x" matches the whole name instead of a prefix, still ignoring case:

	{"id": "q3", "p": "Alandur", "x": true}

Adding an origin coordinate attaches the great circle distance in km to every
match:

	{"id": "q2", "p": "paris", "o": {"la": 48.85, "lo": 2.35}}

# Actions

Insert, remove and stats run against the live index:

	{"id": "a1", "action": "insert", "city": {"i": 1, "c": "ZZ", "n": "Atlantis", "g": {"la": 0, "lo": 0}}}
	{"id": "a2", "action": "remove", "city": {...}}
	{"id": "a3", "action": "stats"}

and are answered with a status, plus "removed" for removals and "stats" for
stats requests.

A config action changes the server limits at runtime and writes them back to
the active config file. Omitted fields keep their value, so an empty config
action just reports the current limits:

	{"id": "a4", "action": "config", "max_limit": 32, "default_limit": 10}

# Errors

Failed requests are answered with {"id", "e", "c"}, where c is 400 for a
malformed request, 503 while the index is not loaded and 500 otherwise.
*/
package server

import "github.com/bastiangx/cityserve/pkg/city"

// Error codes sent in ErrorResponse.Code.
const (
	CodeBadRequest     = 400
	CodeInternal       = 500
	CodeNotInitialized = 503
)

// Action names accepted in ActionRequest.Action.
const (
	ActionInsert = "insert"
	ActionRemove = "remove"
	ActionStats  = "stats"
	ActionConfig = "config"
)

// QueryRequest asks for the cities whose name starts with Prefix.
type QueryRequest struct {
	ID     string      `msgpack:"id"`
	Prefix string      `msgpack:"p"`
	Limit  int         `msgpack:"l,omitempty"`
	Exact  bool        `msgpack:"x,omitempty"`
	Origin *city.Coord `msgpack:"o,omitempty"`
}

// CityResult is one match in a QueryResponse.
type CityResult struct {
	ID       int64    `msgpack:"i"`
	Country  string   `msgpack:"c"`
	Name     string   `msgpack:"n"`
	Lat      float64  `msgpack:"la"`
	Lon      float64  `msgpack:"lo"`
	Geohash  string   `msgpack:"g"`
	Distance *float64 `msgpack:"d,omitempty"`
}

// QueryResponse carries at most Limit results. Count is the total number of
// matches before the limit was applied.
type QueryResponse struct {
	ID        string       `msgpack:"id"`
	Results   []CityResult `msgpack:"r"`
	Count     int          `msgpack:"c"`
	TimeTaken int64        `msgpack:"t"`
}

// ActionRequest mutates or inspects the index, or changes server limits.
type ActionRequest struct {
	ID     string     `msgpack:"id"`
	Action string     `msgpack:"action"`
	City   *city.City `msgpack:"city,omitempty"`

	// config only
	MaxLimit     *int `msgpack:"max_limit,omitempty"`
	DefaultLimit *int `msgpack:"default_limit,omitempty"`
	MaxPrefix    *int `msgpack:"max_prefix,omitempty"`
}

// LimitsInfo reports the server limits after a config action.
type LimitsInfo struct {
	MaxLimit     int `msgpack:"max_limit"`
	DefaultLimit int `msgpack:"default_limit"`
	MaxPrefix    int `msgpack:"max_prefix"`
}

// StatsInfo reports index and cache sizes.
type StatsInfo struct {
	Records      int   `msgpack:"records"`
	Names        int   `msgpack:"names"`
	Nodes        int   `msgpack:"nodes"`
	FreeSlots    int   `msgpack:"free_slots"`
	CacheEntries int   `msgpack:"cache_entries"`
	CacheHits    int   `msgpack:"cache_hits"`
	CacheMisses  int   `msgpack:"cache_misses"`
	Requests     int64 `msgpack:"requests"`
}

// ActionResponse answers an ActionRequest.
type ActionResponse struct {
	ID      string      `msgpack:"id"`
	Status  string      `msgpack:"status"`
	Error   string      `msgpack:"error,omitempty"`
	Removed *bool       `msgpack:"removed,omitempty"`
	Stats   *StatsInfo  `msgpack:"stats,omitempty"`
	Config  *LimitsInfo `msgpack:"config,omitempty"`
}

// ReadyMessage is written once before the first request is read.
type ReadyMessage struct {
	Status string `msgpack:"status"`
	Count  int    `msgpack:"c"`
}

// ErrorResponse holds basic error information for failed requests
type ErrorResponse struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}

// envelope is decoded first to tell queries from actions.
type envelope struct {
	ID     string      `msgpack:"id"`
	Action string      `msgpack:"action"`
	Prefix string      `msgpack:"p"`
	Limit  int         `msgpack:"l"`
	Exact  bool        `msgpack:"x"`
	Origin *city.Coord `msgpack:"o"`
	City   *city.City  `msgpack:"city"`

	MaxLimit     *int `msgpack:"max_limit"`
	DefaultLimit *int `msgpack:"default_limit"`
	MaxPrefix    *int `msgpack:"max_prefix"`
}
