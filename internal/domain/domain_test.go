package domain_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftmgraph/internal/domain"
)

func TestParseType(t *testing.T) {
	assert.Equal(t, domain.TypeName, domain.ParseType("name"))
	assert.Equal(t, domain.TypeIBAN, domain.ParseType(" IBAN "))
	assert.Equal(t, domain.TypeOther, domain.ParseType("json"))
	assert.Equal(t, "url", domain.TypeURL.String())
	assert.Equal(t, "Iban", domain.TypeIBAN.Label())
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "Acme Corp; Acme Ltd", domain.TypeName.Join([]string{"Acme Corp", " ", "Acme Ltd", "Acme Corp"}))
	assert.Equal(t, "de, fr", domain.TypeCountry.Join([]string{"de", "fr", "de"}))
	assert.Equal(t, "", domain.TypeString.Join(nil))
}

func TestNodeIDStableAcrossSpelling(t *testing.T) {
	a, ok := domain.TypeName.NodeID("Acme Corp")
	require.True(t, ok)
	b, ok := domain.TypeName.NodeID("  ACME   corp ")
	require.True(t, ok)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "name:"))

	// Same text under another type is a different node.
	c, ok := domain.TypeIdentifier.NodeID("Acme Corp")
	require.True(t, ok)
	assert.NotEqual(t, a, c)
}

func TestNodeIDRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		typ   domain.Type
		value string
		ok    bool
	}{
		{domain.TypeEmail, "info@example.com", true},
		{domain.TypeEmail, "not-an-email", false},
		{domain.TypeIBAN, "DE89 3704 0044 0532 0130 00", true},
		{domain.TypeIBAN, "1234567890123456", false},
		{domain.TypePhone, "+49 30 1234567", true},
		{domain.TypePhone, "123", false},
		{domain.TypeURL, "https://example.com/about", true},
		{domain.TypeURL, "example", false},
		{domain.TypeIdentifier, "---", false},
		{domain.TypeName, "!!!", false},
		{domain.TypeDate, "2020-01-01", false},
	}
	for _, tc := range cases {
		_, ok := tc.typ.NodeID(tc.value)
		assert.Equal(t, tc.ok, ok, "%s %q", tc.typ, tc.value)
	}

	a, _ := domain.TypeEmail.NodeID("Info@Example.com")
	b, _ := domain.TypeEmail.NodeID("mailto:info@example.com")
	assert.Equal(t, a, b)
}

func TestDefaultModel(t *testing.T) {
	m, err := domain.DefaultModel()
	require.NoError(t, err)

	company, err := m.Get("Company")
	require.NoError(t, err)
	var names []string
	for _, s := range company.Schemata() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Company", "Organization", "LegalEntity", "Asset"}, names)
	assert.True(t, company.IsA("Thing"))
	assert.False(t, company.IsEdge())
	require.NotNil(t, company.Property("email"))
	assert.Equal(t, domain.TypeEmail, company.Property("email").Type)
	assert.True(t, company.IsFeatured("registrationNumber"))

	person, err := m.Get("Person")
	require.NoError(t, err)
	assert.False(t, person.Property("weakAlias").Matchable)
	assert.True(t, person.Property("indexText").Hidden)

	own, err := m.Get("Ownership")
	require.NoError(t, err)
	require.True(t, own.IsEdge())
	assert.Equal(t, "owner", own.Edge.Source)
	assert.Equal(t, "asset", own.Edge.Target)

	_, err = m.Get("Spaceship")
	assert.ErrorIs(t, err, domain.ErrUnknownSchema)
}

func TestParseModelRejectsCycles(t *testing.T) {
	_, err := domain.ParseModel([]byte(`
schemata:
  A: { extends: [B] }
  B: { extends: [A] }
`))
	assert.ErrorIs(t, err, domain.ErrInvalidModel)

	_, err = domain.ParseModel([]byte(`schemata: {}`))
	assert.ErrorIs(t, err, domain.ErrInvalidModel)
}

func TestParseEntity(t *testing.T) {
	m, err := domain.DefaultModel()
	require.NoError(t, err)

	e, err := m.ParseEntity([]byte(`{"id":"p1","schema":"Person","properties":{"name":["Jane Doe","J. Doe"],"bogus":["x"],"topics":"role.pep"}}`))
	require.NoError(t, err)
	assert.Equal(t, "p1", e.ID)
	assert.Equal(t, "Person", e.Schema.Name)
	assert.Equal(t, []string{"Jane Doe", "J. Doe"}, e.Get("name"))
	assert.Equal(t, []string{"role.pep"}, e.Get("topics"))
	assert.Nil(t, e.Get("bogus"))
	assert.Equal(t, "Jane Doe", e.Caption())

	_, err = m.ParseEntity([]byte(`{"schema":"Person"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidEntity)

	_, err = m.ParseEntity([]byte(`{"id":"x","schema":"Spaceship"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidEntity)
	assert.ErrorIs(t, err, domain.ErrUnknownSchema)

	_, err = m.ParseEntity([]byte(`{not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidEntity)
}

func TestCaptionFallsBackToSchemaName(t *testing.T) {
	m, err := domain.DefaultModel()
	require.NoError(t, err)
	s, err := m.Get("Ownership")
	require.NoError(t, err)
	e := domain.NewEntity("o1", s)
	assert.Equal(t, "Ownership", e.Caption())
	e.Add("role", "shareholder")
	assert.Equal(t, "shareholder", e.Caption())
}

func TestTopicCaption(t *testing.T) {
	c, ok := domain.TypeTopic.Caption("sanction")
	require.True(t, ok)
	assert.Equal(t, "Sanctioned entity", c)
	_, ok = domain.TypeTopic.Caption("made.up")
	assert.False(t, ok)
}
