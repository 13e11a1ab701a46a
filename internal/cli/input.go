// Package cli runs an interactive prompt for looking up cities by prefix,
// mostly for debugging the index in real time.
//
// Besides prefixes the prompt takes two commands with a JSON city:
//
//	:add {"_id": 1, "name": "Atlantis", "country": "ZZ", "coord": {"lat": 0, "lon": 0}}
//	:rm {"_id": 1, "name": "Atlantis", "country": "ZZ", "coord": {"lat": 0, "lon": 0}}
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bastiangx/cityserve/internal/utils"
	"github.com/bastiangx/cityserve/pkg/city"
	"github.com/bastiangx/cityserve/pkg/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var (
	nameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	countryStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// Querier is the part of the repository the prompt needs.
type Querier interface {
	Query(prefix string) ([]city.City, error)
	Insert(c city.City) error
	Remove(c city.City) (bool, error)
}

const (
	addCommand    = ":add"
	removeCommand = ":rm"
)

// InputHandler reads prefixes line by line and prints the matching cities.
type InputHandler struct {
	querier      Querier
	input        io.Reader
	out          *log.Logger
	minPrefixLen int
	maxPrefixLen int
	limit        int
	noFilter     bool
	showCoords   bool
	requestCount int
}

// NewInputHandler creates a prompt over q using the [cli] config. Output goes
// to out, which is usually log.Default().
func NewInputHandler(q Querier, cfg config.CliConfig, input io.Reader, out *log.Logger, noFilter bool) *InputHandler {
	return &InputHandler{
		querier:      q,
		input:        input,
		out:          out,
		minPrefixLen: cfg.MinPrefix,
		maxPrefixLen: cfg.MaxPrefix,
		limit:        cfg.DefaultLimit,
		noFilter:     noFilter,
		showCoords:   cfg.ShowCoords,
	}
}

// Start runs the prompt until the input ends.
func (h *InputHandler) Start() error {
	h.out.Print("cityserve CLI")
	h.out.Print("type the start of a city name and press Enter (Ctrl+C to exit):")

	reader := bufio.NewReader(h.input)
	for {
		h.out.Print("> ")
		line, err := reader.ReadString('\n')
		if prefix := strings.TrimSpace(line); prefix != "" {
			h.handleInput(prefix)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (h *InputHandler) handleInput(prefix string) {
	h.requestCount++

	if arg, ok := strings.CutPrefix(prefix, addCommand); ok {
		h.handleAdd(arg)
		return
	}
	if arg, ok := strings.CutPrefix(prefix, removeCommand); ok {
		h.handleRemove(arg)
		return
	}

	n := utf8.RuneCountInString(prefix)
	if n < h.minPrefixLen {
		h.out.Errorf("Prefix too short: %s", prefix)
		return
	}
	if h.maxPrefixLen > 0 && n > h.maxPrefixLen {
		prefix = utils.ClampPrefix(prefix, h.maxPrefixLen)
		h.out.Warnf("Prefix too long, searching for '%s'", prefix)
	}
	if !h.noFilter && !utils.IsValidPrefix(prefix) {
		h.out.Warnf("No cities found for prefix: '%s' (filtered out)", prefix)
		return
	}

	start := time.Now()
	cities, err := h.querier.Query(prefix)
	if err != nil {
		h.out.Errorf("Query failed: %v", err)
		return
	}
	h.out.Debugf("Took [ %v ] for prefix '%s'", time.Since(start), prefix)

	if len(cities) == 0 {
		h.out.Warnf("No cities found for prefix: '%s'", prefix)
		return
	}

	shown := cities[:min(h.limit, len(cities))]
	h.out.Printf("Found %s cities for prefix '%s', showing %d:", utils.FormatWithCommas(len(cities)), prefix, len(shown))
	for i, c := range shown {
		h.out.Print(h.formatCity(i+1, c))
	}
}

func (h *InputHandler) handleAdd(arg string) {
	c, err := city.DecodeOne(strings.NewReader(arg))
	if err != nil {
		h.out.Errorf("Bad city: %v", err)
		return
	}
	if err := h.querier.Insert(c); err != nil {
		h.out.Errorf("Insert failed: %v", err)
		return
	}
	h.out.Printf("Added %s (#%d)", c, c.ID)
}

func (h *InputHandler) handleRemove(arg string) {
	c, err := city.DecodeOne(strings.NewReader(arg))
	if err != nil {
		h.out.Errorf("Bad city: %v", err)
		return
	}
	removed, err := h.querier.Remove(c)
	if err != nil {
		h.out.Errorf("Remove failed: %v", err)
		return
	}
	if !removed {
		h.out.Warnf("Not found: %s", c)
		return
	}
	h.out.Printf("Removed %s", c)
}

func (h *InputHandler) formatCity(rank int, c city.City) string {
	line := fmt.Sprintf("%2d. %-32s %s %s", rank,
		nameStyle.Render(c.Name),
		countryStyle.Render(fmt.Sprintf("%-2s", c.Country)),
		dimStyle.Render(fmt.Sprintf("#%d", c.ID)))
	if h.showCoords {
		line += dimStyle.Render(fmt.Sprintf("  (%.4f, %.4f) %s", c.Coord.Lat, c.Coord.Lon, c.Coord.Geohash()))
	}
	return line
}
