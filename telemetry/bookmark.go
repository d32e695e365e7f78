package telemetry

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/botlife/config"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkAttackSurge        BookmarkType = "attack_surge"
	BookmarkPopulationRecovery BookmarkType = "population_recovery"
	BookmarkPopulationCrash    BookmarkType = "population_crash"
	BookmarkStrategyTakeover   BookmarkType = "strategy_takeover"
	BookmarkStablePopulation   BookmarkType = "stable_population"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Tick        uint64       `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the simulation.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	recentMin          int             // minimum population in recent history
	recentPeak         int             // peak population in recent history
	stableWindowsCount int             // consecutive windows with a stable population
	dominant           map[string]bool // strategies currently holding a takeover
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for stable population detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
		recentMin:   -1,
		dominant:    make(map[string]bool),
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		for _, check := range []func(WindowStats) *Bookmark{
			bd.checkAttackSurge,
			bd.checkPopulationRecovery,
			bd.checkPopulationCrash,
			bd.checkStablePopulation,
		} {
			if b := check(stats); b != nil {
				bookmarks = append(bookmarks, *b)
			}
		}
	}
	bookmarks = append(bookmarks, bd.checkStrategyTakeover(stats)...)

	bd.addToHistory(stats)

	if bd.recentMin < 0 || stats.Alive < bd.recentMin {
		bd.recentMin = stats.Alive
	}
	if stats.Alive > bd.recentPeak {
		bd.recentPeak = stats.Alive
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// getHistory returns the recorded windows oldest first.
func (bd *BookmarkDetector) getHistory() []WindowStats {
	if !bd.historyFull {
		return bd.history[:bd.historyIdx]
	}
	out := make([]WindowStats, 0, bd.historySize)
	out = append(out, bd.history[bd.historyIdx:]...)
	return append(out, bd.history[:bd.historyIdx]...)
}

func (bd *BookmarkDetector) checkAttackSurge(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total int
	for _, h := range history {
		total += h.Attacks
	}
	avg := float64(total) / float64(len(history))
	if avg == 0 {
		return nil
	}

	if float64(stats.Attacks) > avg*2.0 && stats.Attacks >= 5 {
		return &Bookmark{
			Type:        BookmarkAttackSurge,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("%d attacks is %.1fx average (%.1f)", stats.Attacks, float64(stats.Attacks)/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkPopulationRecovery(stats WindowStats) *Bookmark {
	if bd.recentMin < 1 || bd.recentMin > 3 {
		return nil
	}

	if stats.Alive >= bd.recentMin*3 && stats.Alive >= 6 {
		// Reset the minimum after triggering
		oldMin := bd.recentMin
		bd.recentMin = stats.Alive
		return &Bookmark{
			Type:        BookmarkPopulationRecovery,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Population recovered from %d to %d", oldMin, stats.Alive),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkPopulationCrash(stats WindowStats) *Bookmark {
	if bd.recentPeak == 0 {
		return nil
	}

	drop := 1.0 - float64(stats.Alive)/float64(bd.recentPeak)
	if drop > 0.30 && stats.Alive < bd.recentPeak-10 {
		// Reset peak after crash
		oldPeak := bd.recentPeak
		bd.recentPeak = stats.Alive
		bd.recentMin = stats.Alive
		return &Bookmark{
			Type:        BookmarkPopulationCrash,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Population crashed %.0f%% from peak %d to %d", drop*100, oldPeak, stats.Alive),
		}
	}
	return nil
}

// checkStrategyTakeover fires once when a strategy reaches 80% of at least
// ten bots, and rearms when its share falls below half.
func (bd *BookmarkDetector) checkStrategyTakeover(stats WindowStats) []Bookmark {
	var out []Bookmark
	names := append(append([]string{}, config.StrategyNames...), config.ModeChain)
	for _, name := range names {
		share := stats.Share(name)
		switch {
		case !bd.dominant[name] && stats.Alive >= 10 && share >= 0.8:
			bd.dominant[name] = true
			out = append(out, Bookmark{
				Type:        BookmarkStrategyTakeover,
				Tick:        stats.WindowEndTick,
				Description: fmt.Sprintf("%s runs %.0f%% of %d bots", name, share*100, stats.Alive),
			})
		case bd.dominant[name] && share < 0.5:
			bd.dominant[name] = false
		}
	}
	return out
}

func (bd *BookmarkDetector) checkStablePopulation(stats WindowStats) *Bookmark {
	if stats.Alive < 10 {
		bd.stableWindowsCount = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	recent := history[len(history)-4:]
	var sum float64
	for _, h := range recent {
		sum += float64(h.Alive)
	}
	mean := sum / 4

	var variance float64
	for _, h := range recent {
		d := float64(h.Alive) - mean
		variance += d * d
	}
	variance /= 4

	// CV^2 < 0.04 means CV < 0.2
	if mean > 0 && variance/(mean*mean) < 0.04 {
		bd.stableWindowsCount++
	} else {
		bd.stableWindowsCount = 0
	}

	if bd.stableWindowsCount == 5 { // trigger exactly once at 5 windows
		return &Bookmark{
			Type:        BookmarkStablePopulation,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Stable population of %d bots over 5+ windows", stats.Alive),
		}
	}
	return nil
}
