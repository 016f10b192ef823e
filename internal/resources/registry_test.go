package resources

import (
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func authorDefinition() *Definition {
	return &Definition{
		ResourceName: "author",
		Table:        "authors",
		DisplayField: "name",
		FieldList: []Field{
			{Name: "id", Type: FieldString, ReadOnly: true},
			{Name: "name", Type: FieldString, Required: true},
			{Name: "email", Type: FieldString, Required: true, Unique: true},
		},
		Search: []string{"name", "email"},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(authorDefinition()))

	desc, ok := registry.Get("author")
	require.True(t, ok)
	require.Equal(t, "authors", desc.TableName())
	require.Equal(t, "id", desc.PrimaryKey())

	_, ok = registry.Get("missing")
	require.False(t, ok)
}

func TestRegistryReRegistrationIsNoOp(t *testing.T) {
	registry := NewRegistry()

	first := authorDefinition()
	require.NoError(t, registry.Register(first))

	replacement := authorDefinition()
	replacement.Table = "authors_v2"
	require.NoError(t, registry.Register(replacement))

	desc, ok := registry.Get("author")
	require.True(t, ok)
	require.Equal(t, "authors", desc.TableName(), "existing registration must win")
	require.Len(t, registry.All(), 1)
}

func TestRegistryRejectsInvalidNames(t *testing.T) {
	registry := NewRegistry()

	require.Error(t, registry.Register(nil))
	require.Error(t, registry.Register(&Definition{ResourceName: "", Table: "t"}))
	require.Error(t, registry.Register(&Definition{ResourceName: "blog_post", Table: "posts"}))
	require.Error(t, registry.Register(&Definition{ResourceName: "find_resources", Table: "t"}))
	require.Error(t, registry.Register(&Definition{ResourceName: "author", Table: ""}))
}

func TestRegistryConcurrentRegistration(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = registry.Register(authorDefinition())
			_, _ = registry.Get("author")
		}()
	}
	wg.Wait()

	require.Len(t, registry.All(), 1)
	require.Equal(t, []string{"author"}, registry.Names())
}

func TestFieldColumnNameDefaults(t *testing.T) {
	require.Equal(t, "name", Field{Name: "name"}.ColumnName())
	require.Equal(t, "author_id", Field{Name: "author", Relation: "author"}.ColumnName())
	require.Equal(t, "custom_col", Field{Name: "author", Relation: "author", Column: "custom_col"}.ColumnName())
}

func TestFieldByNameMatchesLogicalAndColumnNames(t *testing.T) {
	def := &Definition{
		ResourceName: "article",
		Table:        "articles",
		FieldList: []Field{
			{Name: "title", Type: FieldString},
			{Name: "author", Type: FieldRelation, Relation: "author"},
		},
	}

	byLogical, ok := FieldByName(def, "author")
	require.True(t, ok)
	byColumn, ok2 := FieldByName(def, "author_id")
	require.True(t, ok2)
	require.Equal(t, byLogical, byColumn)

	_, ok = FieldByName(def, "nope")
	require.False(t, ok)
}

func TestObjectReprUsesDisplayField(t *testing.T) {
	def := authorDefinition()

	repr := ObjectRepr(def, map[string]any{"id": "a1", "name": "Ada Lovelace"})
	require.Equal(t, "Ada Lovelace", repr)

	repr = ObjectRepr(def, map[string]any{"id": "a1"})
	require.Equal(t, "author a1", repr)
}

func TestObjectReprTruncatesOnRuneBoundary(t *testing.T) {
	def := authorDefinition()

	long := strings.Repeat("é", 300)
	repr := ObjectRepr(def, map[string]any{"id": "a1", "name": long})
	require.Equal(t, 200, utf8.RuneCountInString(repr))
	require.True(t, utf8.ValidString(repr))

	short := ObjectRepr(def, map[string]any{"id": "a1", "name": "brief"})
	require.Equal(t, "brief", short)
}
