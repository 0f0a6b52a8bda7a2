package domain

import (
	"strings"

	"github.com/google/uuid"
)

// ── Property types ─────────────────────────────────────────
// The closed set of value types a property can carry. Every
// type knows how to join multiple values into one cell, how to
// caption a value and, for reifiable types, how to derive a
// stable node identifier from a normalized value.

// Type is a property value type.
type Type int

const (
	TypeOther Type = iota
	TypeString
	TypeText
	TypeDate
	TypeIdentifier
	TypeCountry
	TypeName
	TypeEmail
	TypePhone
	TypeIBAN
	TypeURL
	TypeEntity
	TypeTopic
	TypeAddress
	TypeNumber
)

type typeInfo struct {
	name      string
	label     string
	matchable bool
	sep       string
	normalize func(string) (string, bool)
	namespace uuid.UUID
}

var types = map[Type]*typeInfo{
	TypeOther:      {name: "other", label: "Other", sep: "; "},
	TypeString:     {name: "string", label: "String", sep: "; "},
	TypeText:       {name: "text", label: "Text", sep: "; "},
	TypeDate:       {name: "date", label: "Date", matchable: true, sep: "; "},
	TypeIdentifier: {name: "identifier", label: "Identifier", matchable: true, sep: "; ", normalize: normalizeIdentifier},
	TypeCountry:    {name: "country", label: "Country", matchable: true, sep: ", "},
	TypeName:       {name: "name", label: "Name", matchable: true, sep: "; ", normalize: normalizeName},
	TypeEmail:      {name: "email", label: "Email", matchable: true, sep: "; ", normalize: normalizeEmail},
	TypePhone:      {name: "phone", label: "Phone", matchable: true, sep: "; ", normalize: normalizePhone},
	TypeIBAN:       {name: "iban", label: "Iban", matchable: true, sep: "; ", normalize: normalizeIBAN},
	TypeURL:        {name: "url", label: "Url", sep: "; ", normalize: normalizeURL},
	TypeEntity:     {name: "entity", label: "Entity", matchable: true, sep: "; "},
	TypeTopic:      {name: "topic", label: "Topic", sep: "; "},
	TypeAddress:    {name: "address", label: "Address", sep: "; "},
	TypeNumber:     {name: "number", label: "Number", sep: "; "},
}

var typesByName = map[string]Type{}

func init() {
	for t, info := range types {
		typesByName[info.name] = t
		if info.normalize != nil {
			info.namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ftmgraph:type:"+info.name))
		}
	}
}

// ParseType maps a model type name to a Type. Unknown names map
// to TypeOther so that models can carry types the exporter ignores.
func ParseType(name string) Type {
	if t, ok := typesByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t
	}
	return TypeOther
}

func (t Type) info() *typeInfo {
	if info, ok := types[t]; ok {
		return info
	}
	return types[TypeOther]
}

// String returns the model name of the type ("name", "iban", ...).
func (t Type) String() string { return t.info().name }

// Label is the graph label used when values of this type become nodes.
func (t Type) Label() string { return t.info().label }

// Matchable reports whether values of the type are meaningful for
// identity matching.
func (t Type) Matchable() bool { return t.info().matchable }

// Join collapses values into a single cell, dropping blanks and
// duplicates while preserving first-seen order.
func (t Type) Join(values []string) string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return strings.Join(out, t.info().sep)
}

// Caption returns a human-readable rendering of value.
func (t Type) Caption(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	switch t {
	case TypeTopic:
		return TopicCaption(value)
	case TypeCountry:
		return strings.ToUpper(value), true
	}
	return value, true
}

// NodeID derives a stable identifier for a value-node. Equivalent
// values (after per-type normalization) yield the same identifier;
// values that fail normalization yield false.
func (t Type) NodeID(value string) (string, bool) {
	info := t.info()
	if info.normalize == nil {
		return "", false
	}
	norm, ok := info.normalize(value)
	if !ok {
		return "", false
	}
	return info.name + ":" + uuid.NewSHA1(info.namespace, []byte(norm)).String(), true
}
