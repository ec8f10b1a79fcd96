package locker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/c360studio/reportengine/config"
)

// MediaSection is where unmatched photos and video land.
const MediaSection = "8"

// Classification is the outcome of routing one item.
type Classification struct {
	Section string
	Rule    string
	Reason  string
}

// Classifier routes evidence to report sections with ordered rules.
// The first rule that matches wins.
type Classifier struct {
	rules          []config.ClassificationRule
	defaultSection string
}

// NewClassifier validates the rule patterns and returns a classifier.
func NewClassifier(cfg config.ClassificationConfig) (*Classifier, error) {
	for _, rule := range cfg.Rules {
		for _, p := range rule.Patterns {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("classification rule %q: invalid pattern %q", rule.Name, p)
			}
		}
	}
	def := cfg.DefaultSection
	if def == "" {
		def = "5"
	}
	return &Classifier{rules: cfg.Rules, defaultSection: def}, nil
}

// Classify picks a section for item using its filename, MIME type and text.
func (c *Classifier) Classify(item *Item, text string) Classification {
	name := strings.ToLower(filepath.Base(item.Filename))
	lowerText := strings.ToLower(text)

	for _, rule := range c.rules {
		if reason, ok := matchRule(rule, name, item.MimeType, lowerText); ok {
			return Classification{Section: rule.Section, Rule: rule.Name, Reason: reason}
		}
	}

	if item.Kind == KindMedia {
		return Classification{Section: MediaSection, Rule: "default-media", Reason: "media file"}
	}
	return Classification{Section: c.defaultSection, Rule: "default", Reason: "no rule matched"}
}

func matchRule(rule config.ClassificationRule, name, mimeType, lowerText string) (string, bool) {
	for _, prefix := range rule.MimePrefixes {
		if strings.HasPrefix(mimeType, prefix) {
			return "mime " + prefix, true
		}
	}
	for _, pattern := range rule.Patterns {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), name); ok {
			return "filename " + pattern, true
		}
	}
	if lowerText != "" {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowerText, strings.ToLower(kw)) {
				return "keyword " + kw, true
			}
		}
	}
	return "", false
}
