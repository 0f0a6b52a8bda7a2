package graph

import (
	"strings"

	"github.com/go-openapi/inflect"

	"ftmgraph/internal/domain"
)

// Treatment is the set of projections applied to a property's values.
type Treatment uint8

const (
	Inline Treatment = 1 << iota // joined into a column on the owner's row
	Reify                        // each value becomes a node linked by HAS_<TYPE>
	Link                         // each value is an entity id linked directly
	Topic                        // each value adds a pseudo-label row

	Ignore Treatment = 0
)

// Has reports whether t includes all of f.
func (t Treatment) Has(f Treatment) bool { return t&f == f && f != 0 }

// Classify decides how a property's values are projected.
func Classify(prop *domain.Property, featured bool) Treatment {
	if prop.Hidden {
		return Ignore
	}
	if prop.Type.Matchable() && !prop.Matchable {
		return Ignore
	}

	var t Treatment
	if featured {
		t |= Inline
	}
	switch prop.Type {
	case domain.TypeName, domain.TypeIdentifier:
		t |= Inline | Reify
	case domain.TypeDate, domain.TypeCountry:
		t |= Inline
	case domain.TypeEmail, domain.TypePhone, domain.TypeIBAN, domain.TypeURL:
		t |= Reify
	case domain.TypeEntity:
		t |= Link
	case domain.TypeTopic:
		t |= Topic
	case domain.TypeString, domain.TypeText, domain.TypeAddress, domain.TypeNumber, domain.TypeOther:
	}
	return t
}

// ReifiedTypes lists the types whose values become nodes, in the
// order their constraints and prunes appear in the load script.
func ReifiedTypes() []domain.Type {
	return []domain.Type{
		domain.TypeName,
		domain.TypeEmail,
		domain.TypePhone,
		domain.TypeIdentifier,
		domain.TypeIBAN,
		domain.TypeURL,
	}
}

// ReifiedLabels returns the node labels of ReifiedTypes.
func ReifiedLabels() []string {
	types := ReifiedTypes()
	labels := make([]string, len(types))
	for i, t := range types {
		labels[i] = t.Label()
	}
	return labels
}

// HasLabel returns the edge label linking an entity to a reified value.
func HasLabel(t domain.Type) string {
	return "HAS_" + ConstCase(t.String())
}

// ConstCase renders a camel or pascal cased name in UPPER_SNAKE_CASE.
func ConstCase(name string) string {
	return strings.ToUpper(inflect.Underscore(name))
}
