package graph

import (
	"github.com/go-openapi/inflect"

	"ftmgraph/internal/domain"
)

// topicLabelOverrides maps topic codes whose label is fixed rather
// than derived from the caption.
var topicLabelOverrides = map[string]string{
	"role.pep": "PEP",
}

// TopicLabel returns the pseudo-label for a topic code: the override
// if one exists, else the caption in PascalCase.
func TopicLabel(code string) (string, bool) {
	if label, ok := topicLabelOverrides[code]; ok {
		return label, true
	}
	caption, ok := domain.TypeTopic.Caption(code)
	if !ok {
		return "", false
	}
	label := inflect.Camelize(caption)
	if label == "" {
		return "", false
	}
	return label, true
}
