// Package patterns clusters error and warning messages into drain3 templates
// so repeated failures are counted as one pattern per severity.
package patterns

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/jaeyo/go-drain3/pkg/drain3"

	"github.com/tinytelemetry/satis/internal/model"
)

const (
	defaultDepth       = 4
	defaultSimilarity  = 0.4
	defaultMaxChildren = 100
	defaultMaxClusters = 1000
)

// Miner feeds messages into one drain3 tree per severity.
type Miner struct {
	trees map[model.Severity]*drain3.Drain
	total int
}

// NewMiner returns an empty miner.
func NewMiner() *Miner {
	return &Miner{trees: make(map[model.Severity]*drain3.Drain)}
}

// Add clusters one message under sev. Blank messages are skipped.
func (m *Miner) Add(sev model.Severity, message string) error {
	content := stripPrefix(message)
	if content == "" {
		return nil
	}
	tree, ok := m.trees[sev]
	if !ok {
		var err error
		tree, err = drain3.NewDrain(
			drain3.WithDepth(defaultDepth),
			drain3.WithSimTh(defaultSimilarity),
			drain3.WithMaxChildren(defaultMaxChildren),
			drain3.WithMaxCluster(defaultMaxClusters),
		)
		if err != nil {
			return fmt.Errorf("drain3 init: %w", err)
		}
		m.trees[sev] = tree
	}
	if _, _, err := tree.AddLogMessage(content); err != nil {
		return fmt.Errorf("drain3 add: %w", err)
	}
	m.total++
	return nil
}

// Stats returns the number of templates and the number of messages mined.
func (m *Miner) Stats() (templates, messages int) {
	for _, tree := range m.trees {
		templates += len(tree.GetClusters())
	}
	return templates, m.total
}

// Top returns up to n patterns ordered by count descending. n <= 0 returns
// every pattern.
func (m *Miner) Top(n int) []model.ErrorPattern {
	var out []model.ErrorPattern
	for sev, tree := range m.trees {
		for _, c := range tree.GetClusters() {
			if c.Size == 0 {
				continue
			}
			out = append(out, model.ErrorPattern{
				Severity: sev,
				Template: c.GetTemplate(),
				Count:    int(c.Size),
			})
		}
	}
	slices.SortFunc(out, func(a, b model.ErrorPattern) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Severity, b.Severity); c != 0 {
			return c
		}
		return cmp.Compare(a.Template, b.Template)
	})
	if m.total > 0 {
		for i := range out {
			out[i].Percentage = float64(out[i].Count) * 100 / float64(m.total)
		}
	}
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Reset drops every template.
func (m *Miner) Reset() {
	clear(m.trees)
	m.total = 0
}

// Mine clusters every record of a corpus and returns all patterns.
func Mine(records []model.LogRecord) ([]model.ErrorPattern, error) {
	m := NewMiner()
	for _, r := range records {
		if err := m.Add(r.Severity, r.Message); err != nil {
			return nil, err
		}
	}
	return m.Top(0), nil
}

// stripPrefix removes the leading bracketed timestamp and frame groups of a
// FactoryGame line, e.g. "[2025.07.27-11.00.00:123][ 12]".
func stripPrefix(message string) string {
	s := strings.TrimSpace(message)
	for strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			break
		}
		s = strings.TrimLeft(s[end+1:], " ")
	}
	return strings.TrimSpace(s)
}
