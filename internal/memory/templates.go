package memory

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SaveCampaignTemplate persists an immutable template of the current
// run. The template ID is deterministic over (label, category, session)
// so re-saving within one session overwrites rather than duplicates.
// Templates below the approval threshold are rejected.
func (m *Manager) SaveCampaignTemplate(label, category string, qualityScore float64, audience string, keywords []string, structure, metrics interface{}, tags []string) (string, error) {
	if qualityScore < m.approval {
		return "", fmt.Errorf("quality score %.1f below approval threshold %.1f", qualityScore, m.approval)
	}

	structRaw, err := json.Marshal(structure)
	if err != nil {
		return "", fmt.Errorf("marshal template structure: %w", err)
	}
	metricsRaw, err := json.Marshal(metrics)
	if err != nil {
		return "", fmt.Errorf("marshal template metrics: %w", err)
	}

	sum := md5.Sum([]byte(label + ":" + category + ":" + m.sessionID))
	templateID := hex.EncodeToString(sum[:])[:16]

	tpl := &CampaignTemplate{
		TemplateID:   templateID,
		Label:        label,
		Category:     category,
		QualityScore: qualityScore,
		CreatedAt:    time.Now(),
		SessionID:    m.sessionID,
		Audience:     audience,
		Keywords:     keywords,
		Structure:    structRaw,
		Metrics:      metricsRaw,
		Tags:         tags,
	}

	m.tplMu.Lock()
	defer m.tplMu.Unlock()

	m.templates[templateID] = tpl
	if err := m.saveTemplatesIndexLocked(); err != nil {
		return "", err
	}

	// One detailed file per template alongside the index.
	data, err := json.MarshalIndent(tpl, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal template %s: %w", templateID, err)
	}
	path := filepath.Join(m.templatesDir, templateID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write template %s: %w", templateID, err)
	}

	m.logger.Info("campaign template saved",
		zap.String("template", templateID),
		zap.String("category", category),
		zap.Float64("quality", qualityScore))
	return templateID, nil
}

// FindSimilarCampaigns scores stored templates against the query and
// returns matches ordered by (similarity, quality) descending.
//
// Similarity weights: category exact match 0.4, keyword set overlap
// 0.4 * |A∩B| / max(|A|,|B|), audience word overlap 0.2 * same ratio.
// Templates below the quality floor or with zero similarity are excluded.
func (m *Manager) FindSimilarCampaigns(q TemplateQuery) []TemplateMatch {
	m.tplMu.Lock()
	defer m.tplMu.Unlock()

	var matches []TemplateMatch
	for _, tpl := range m.templates {
		if tpl.QualityScore < q.MinQuality {
			continue
		}

		similarity := 0.0
		if q.Category != "" && strings.EqualFold(tpl.Category, q.Category) {
			similarity += 0.4
		}
		if len(q.Keywords) > 0 && len(tpl.Keywords) > 0 {
			overlap := setOverlap(q.Keywords, tpl.Keywords)
			if overlap > 0 {
				similarity += 0.4 * float64(overlap) / float64(max(len(q.Keywords), len(tpl.Keywords)))
			}
		}
		if q.Audience != "" && tpl.Audience != "" {
			queryWords := strings.Fields(strings.ToLower(q.Audience))
			tplWords := strings.Fields(strings.ToLower(tpl.Audience))
			overlap := setOverlap(queryWords, tplWords)
			if overlap > 0 {
				similarity += 0.2 * float64(overlap) / float64(max(len(queryWords), len(tplWords)))
			}
		}

		if similarity > 0 {
			matches = append(matches, TemplateMatch{Template: tpl, Similarity: similarity})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Template.QualityScore > matches[j].Template.QualityScore
	})

	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches
}

// LearningSuggestions returns a reuse hint from the best matching
// high-quality template, or false when none qualifies.
func (m *Manager) LearningSuggestions(product ProductInfo) (*Suggestion, bool) {
	matches := m.FindSimilarCampaigns(TemplateQuery{
		Category:   product.Category,
		Keywords:   product.Keywords,
		Audience:   product.Audience,
		MinQuality: 85.0,
		Limit:      3,
	})
	if len(matches) == 0 {
		return nil, false
	}

	best := matches[0]
	keywords := best.Template.Keywords
	if len(keywords) > 10 {
		keywords = keywords[:10]
	}
	return &Suggestion{
		TemplateID:   best.Template.TemplateID,
		Similarity:   best.Similarity,
		Label:        best.Template.Label,
		QualityScore: best.Template.QualityScore,
		CreatedAt:    best.Template.CreatedAt,
		Keywords:     keywords,
		Structure:    best.Template.Structure,
	}, true
}

func (m *Manager) loadTemplates() error {
	if err := os.MkdirAll(m.templatesDir, 0o755); err != nil {
		return fmt.Errorf("create templates dir: %w", err)
	}

	m.templates = make(map[string]*CampaignTemplate)
	indexPath := filepath.Join(m.templatesDir, "templates_index.json")
	data, err := os.ReadFile(indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read templates index: %w", err)
	}
	if err := json.Unmarshal(data, &m.templates); err != nil {
		m.logger.Warn("could not parse templates index, starting empty", zap.Error(err))
		m.templates = make(map[string]*CampaignTemplate)
	}
	return nil
}

func (m *Manager) saveTemplatesIndexLocked() error {
	data, err := json.MarshalIndent(m.templates, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal templates index: %w", err)
	}
	indexPath := filepath.Join(m.templatesDir, "templates_index.json")
	if err := os.WriteFile(indexPath, data, 0o644); err != nil {
		return fmt.Errorf("write templates index: %w", err)
	}
	return nil
}

// setOverlap counts distinct elements present in both slices.
func setOverlap(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	count := 0
	seen := make(map[string]struct{}, len(b))
	for _, s := range b {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := set[s]; ok {
			count++
		}
	}
	return count
}
